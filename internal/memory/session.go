package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roach88/echomem/internal/canonical"
)

// GenesisHash anchors each session's validation ledger chain. Chains are
// scoped to a single session and never linked across sessions.
var GenesisHash = strings.Repeat("0", 64)

// Session accumulates the record of one in-progress run and freezes it
// into an ExecutionContext on Close. A session is bound to exactly one
// store and is not safe for concurrent use.
type Session struct {
	store               *Store
	metadata            map[string]any
	commands            []CommandRecord
	datasetFingerprints map[string]DatasetFingerprint
	validations         []ValidationRecord
	metrics             map[string][]MetricSample
	cycle               *int
	artifact            *string
	summary             *string
	startedAt           time.Time
	closed              bool
}

func newSession(store *Store, metadata map[string]any) *Session {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Session{
		store:               store,
		metadata:            metadata,
		datasetFingerprints: map[string]DatasetFingerprint{},
		metrics:             map[string][]MetricSample{},
		startedAt:           store.now(),
	}
}

// RecordCommand appends a command record. An empty detail is recorded as
// absent.
func (s *Session) RecordCommand(name, detail string) CommandRecord {
	entry := CommandRecord{
		Name:       name,
		RecordedAt: s.timestamp(),
	}
	if detail != "" {
		entry.Detail = &detail
	}
	s.commands = append(s.commands, entry)
	return entry
}

// FingerprintDataset reads the file at path and records its content hash
// and size. A missing or unreadable file records an error descriptor
// instead; this never fails the session.
func (s *Session) FingerprintDataset(name, path string) DatasetFingerprint {
	blob, err := os.ReadFile(path)
	var result DatasetFingerprint
	if err != nil {
		reason := "not found"
		if !os.IsNotExist(err) {
			reason = err.Error()
		}
		result = DatasetFingerprint{Path: path, Error: reason}
	} else {
		sum := sha256.Sum256(blob)
		size := int64(len(blob))
		result = DatasetFingerprint{
			Path:   path,
			SHA256: hex.EncodeToString(sum[:]),
			Size:   &size,
		}
	}
	s.datasetFingerprints[name] = result
	return result
}

// RecordValidation appends a validation record and extends the session's
// ledger chain: the record's previous hash is the prior record's ledger
// hash (or the genesis value), and its ledger hash covers name, status,
// details, recorded-at, and the previous hash.
func (s *Session) RecordValidation(name, status string, details map[string]any) (ValidationRecord, error) {
	if details == nil {
		details = map[string]any{}
	}
	previous := GenesisHash
	if n := len(s.validations); n > 0 {
		previous = s.validations[n-1].LedgerHash
	}

	entry := ValidationRecord{
		Name:         name,
		Status:       status,
		Details:      details,
		RecordedAt:   s.timestamp(),
		PreviousHash: previous,
	}
	ledger, err := ledgerHash(entry)
	if err != nil {
		return ValidationRecord{}, err
	}
	entry.LedgerHash = ledger
	s.validations = append(s.validations, entry)
	return entry, nil
}

// ledgerHash computes the chain hash over every field except the ledger
// hash itself.
func ledgerHash(entry ValidationRecord) (string, error) {
	data, err := canonical.Marshal(map[string]any{
		"name":          entry.Name,
		"status":        entry.Status,
		"details":       entry.Details,
		"recorded_at":   entry.RecordedAt,
		"previous_hash": entry.PreviousHash,
	})
	if err != nil {
		return "", fmt.Errorf("ledger hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RecordMetric appends one sample to the named metric series. Unit and
// metadata are optional.
func (s *Session) RecordMetric(name string, value float64, unit string, metadata map[string]any) MetricSample {
	sample := MetricSample{
		Value:      value,
		Unit:       unit,
		Metadata:   metadata,
		RecordedAt: s.timestamp(),
	}
	s.metrics[name] = append(s.metrics[name], sample)
	return sample
}

// Annotate merges the given entries into the session metadata. Last
// write per key wins.
func (s *Session) Annotate(metadata map[string]any) {
	for k, v := range metadata {
		s.metadata[k] = v
	}
}

// RecordError annotates the session with a run error. The error is
// appended under the "errors" metadata key so the session can still
// close normally.
func (s *Session) RecordError(err error) {
	if err == nil {
		return
	}
	existing, _ := s.metadata["errors"].([]any)
	s.metadata["errors"] = append(existing, err.Error())
}

// SetCycle records the cycle number for this run.
func (s *Session) SetCycle(cycle int) {
	s.cycle = &cycle
}

// SetArtifact records the path of the run's primary artifact.
func (s *Session) SetArtifact(artifact string) {
	s.artifact = &artifact
}

// SetSummary records a free-form summary of the run.
func (s *Session) SetSummary(summary string) {
	s.summary = &summary
}

// Close freezes the accumulated fields into an ExecutionContext, stamped
// with the timestamp captured at session start, and persists it. Calling
// Close a second time is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	// Collections are frozen non-nil so the serialized shape (and thus
	// the fingerprint) is identical whether or not anything was recorded.
	if s.commands == nil {
		s.commands = []CommandRecord{}
	}
	if s.validations == nil {
		s.validations = []ValidationRecord{}
	}

	ctx := ExecutionContext{
		Timestamp:           s.startedAt.UTC().Format(time.RFC3339Nano),
		Commands:            s.commands,
		DatasetFingerprints: s.datasetFingerprints,
		Validations:         s.validations,
		Metadata:            s.metadata,
		Cycle:               s.cycle,
		Artifact:            s.artifact,
		Summary:             s.summary,
		Metrics:             s.metrics,
	}
	return s.store.persist(ctx)
}

func (s *Session) timestamp() string {
	return s.store.now().UTC().Format(time.RFC3339Nano)
}
