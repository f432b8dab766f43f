package memory

import (
	"errors"
	"fmt"
)

// QueryError represents a caller mistake in a store query. These are
// programmer errors raised synchronously and never recovered internally,
// as opposed to parse errors (skipped locally) and I/O errors (fatal).
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// Message is a human-readable description.
	Message string
}

// QueryErrorCode categorizes query errors.
type QueryErrorCode string

const (
	// ErrCodeNegativeLimit indicates a negative limit was supplied.
	ErrCodeNegativeLimit QueryErrorCode = "NEGATIVE_LIMIT"

	// ErrCodeBadTimeBound indicates an unparsable since/until bound.
	ErrCodeBadTimeBound QueryErrorCode = "BAD_TIME_BOUND"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsQueryError returns true if the error is a store query error.
// Uses errors.As to handle wrapped errors.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// NewNegativeLimitError creates a QueryError for a negative limit.
func NewNegativeLimitError(limit int) *QueryError {
	return &QueryError{
		Code:    ErrCodeNegativeLimit,
		Message: fmt.Sprintf("limit must be non-negative, got %d", limit),
	}
}

// NewBadTimeBoundError creates a QueryError for an unparsable time bound.
func NewBadTimeBoundError(field, value string) *QueryError {
	return &QueryError{
		Code:    ErrCodeBadTimeBound,
		Message: fmt.Sprintf("cannot parse %s bound %q as a timestamp", field, value),
	}
}
