package memory

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates an initialized store in a temp directory with
// a deterministic, advancing clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "memory_store.json"), filepath.Join(dir, "EXECUTION_LOG.md"))
	s.now = testClock()
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	return s
}

// testClock returns a fake clock that advances one second per call.
func testClock() func() time.Time {
	current := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := current
		current = current.Add(time.Second)
		return now
	}
}
