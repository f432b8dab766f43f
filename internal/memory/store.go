package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/echomem/internal/canonical"
)

const logHeader = "# Execution Memory Log\n\n"

// storeDocument is the on-disk shape of the backing file. Entries stay as
// raw payloads so fields written by other builds survive a round-trip.
type storeDocument struct {
	Executions []map[string]any `json:"executions"`
}

// Store is a file-backed collection of ExecutionContexts. The backing
// JSON document is rewritten in full on every mutation; the Markdown log
// is a true append. See the package comment for the single-writer
// limitation.
type Store struct {
	storePath string
	logPath   string

	// now is swappable in tests for deterministic timestamps.
	now func() time.Time
}

// NewStore creates a store over the given backing file and human log
// paths. No I/O happens until Initialize or the first operation.
func NewStore(storePath, logPath string) *Store {
	return &Store{
		storePath: storePath,
		logPath:   logPath,
		now:       time.Now,
	}
}

// Initialize creates the backing file with an empty execution list and
// the human log with its header, when either is absent. Idempotent.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	if _, err := os.Stat(s.storePath); os.IsNotExist(err) {
		if err := s.write(storeDocument{Executions: []map[string]any{}}); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.logPath), 0o755); err != nil {
		return fmt.Errorf("initialize log: %w", err)
	}
	if _, err := os.Stat(s.logPath); os.IsNotExist(err) {
		if err := os.WriteFile(s.logPath, []byte(logHeader), 0o644); err != nil {
			return fmt.Errorf("initialize log: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("initialize log: %w", err)
	}
	return nil
}

// Session creates a new execution session recording into this store.
// Nothing is persisted until the session closes.
func (s *Store) Session(metadata map[string]any) *Session {
	return newSession(s, metadata)
}

// QueryOptions filters RecentExecutions. A nil Limit returns all
// matches; Since and Until are inclusive timestamp bounds.
type QueryOptions struct {
	Limit          *int
	MetadataFilter map[string]any
	Since          string
	Until          string
}

// Limit builds the Limit field of QueryOptions.
func Limit(n int) *int {
	return &n
}

// RecentExecutions returns stored contexts in original append order,
// optionally filtered. A negative limit is a QueryError; limit zero
// returns an empty list; when a positive limit truncates, the most
// recent matches are kept.
func (s *Store) RecentExecutions(opts QueryOptions) ([]ExecutionContext, error) {
	if opts.Limit != nil && *opts.Limit < 0 {
		return nil, NewNegativeLimitError(*opts.Limit)
	}

	var since, until time.Time
	if opts.Since != "" {
		t, err := parseTimestamp(opts.Since)
		if err != nil {
			return nil, NewBadTimeBoundError("since", opts.Since)
		}
		since = t
	}
	if opts.Until != "" {
		t, err := parseTimestamp(opts.Until)
		if err != nil {
			return nil, NewBadTimeBoundError("until", opts.Until)
		}
		until = t
	}

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	executions := make([]ExecutionContext, 0, len(doc.Executions))
	for _, entry := range doc.Executions {
		ctx := ContextFromPayload(entry)
		if !metadataMatches(ctx.Metadata, opts.MetadataFilter) {
			continue
		}
		if opts.Since != "" || opts.Until != "" {
			ts, err := parseTimestamp(ctx.Timestamp)
			if err != nil {
				// An unparsable stored timestamp cannot satisfy a bound.
				continue
			}
			if opts.Since != "" && ts.Before(since) {
				continue
			}
			if opts.Until != "" && ts.After(until) {
				continue
			}
		}
		executions = append(executions, ctx)
	}

	if opts.Limit != nil {
		if *opts.Limit == 0 {
			return []ExecutionContext{}, nil
		}
		if len(executions) > *opts.Limit {
			executions = executions[len(executions)-*opts.Limit:]
		}
	}
	return executions, nil
}

// IngestReplica persists a context captured on another node unless a
// content-equal context is already stored. Returns true when the context
// was newly persisted. This is the idempotence boundary for replicated
// writes.
func (s *Store) IngestReplica(ctx ExecutionContext, replicaMetadata map[string]any) (bool, error) {
	fingerprint, err := ctx.Fingerprint()
	if err != nil {
		return false, err
	}

	doc, err := s.load()
	if err != nil {
		return false, err
	}

	for _, entry := range doc.Executions {
		existing, ok := entry[FingerprintField].(string)
		if !ok || existing == "" {
			existing, err = ComputeFingerprint(entry)
			if err != nil {
				continue
			}
		}
		if existing == fingerprint {
			return false, nil
		}
	}

	payload, err := ctx.PayloadWithFingerprint()
	if err != nil {
		return false, err
	}
	doc.Executions = append(doc.Executions, payload)
	if err := s.write(doc); err != nil {
		return false, err
	}
	if err := s.appendLog(ctx, replicaMetadata); err != nil {
		return false, err
	}
	return true, nil
}

// persist appends a freshly closed context. Called by Session.Close.
func (s *Store) persist(ctx ExecutionContext) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	payload, err := ctx.PayloadWithFingerprint()
	if err != nil {
		return err
	}
	doc.Executions = append(doc.Executions, payload)
	if err := s.write(doc); err != nil {
		return err
	}
	return s.appendLog(ctx, nil)
}

func (s *Store) load() (storeDocument, error) {
	raw, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		return storeDocument{Executions: []map[string]any{}}, nil
	}
	if err != nil {
		return storeDocument{}, fmt.Errorf("load store: %w", err)
	}
	var doc storeDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return storeDocument{}, fmt.Errorf("load store: %w", err)
	}
	if doc.Executions == nil {
		doc.Executions = []map[string]any{}
	}
	return doc, nil
}

func (s *Store) write(doc storeDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.WriteFile(s.storePath, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}

func metadataMatches(metadata, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares two JSON-shaped values by canonical serialization,
// so int64(3) from a caller matches float64(3) from a decoded document.
func valuesEqual(a, b any) bool {
	ra, errA := canonicalBytes(a)
	rb, errB := canonicalBytes(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ra) == string(rb)
}

func canonicalBytes(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return canonical.Marshal(generic)
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
