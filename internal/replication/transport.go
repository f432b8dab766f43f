package replication

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Transport is the publish/fetch channel for CRDT snapshots, one
// snapshot per node. Push durably replaces the current snapshot for a
// node id; Pull returns the latest snapshot of every known node except
// the excluded one, silently omitting anything that fails to parse.
type Transport interface {
	Push(nodeID string, snap Snapshot) error
	Pull(exclude string) ([]Snapshot, error)
}

// DirectoryTransport is the reference Transport: one JSON file per node
// under a shared root. Writes go to a temp file first and are renamed
// into place, so a reader never observes a half-written snapshot.
//
// Multiple processes may share the root concurrently as long as each
// owns a distinct node id; the rename guarantees one writer per file,
// not per logical node.
type DirectoryTransport struct {
	root string
}

// NewDirectoryTransport creates the shared root if needed.
func NewDirectoryTransport(root string) (*DirectoryTransport, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create transport root: %w", err)
	}
	return &DirectoryTransport{root: root}, nil
}

// Root returns the shared directory path.
func (t *DirectoryTransport) Root() string {
	return t.root
}

// Push publishes the snapshot as <root>/<node>.json via atomic rename.
func (t *DirectoryTransport) Push(nodeID string, snap Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}

	final := filepath.Join(t.root, nodeID+".json")
	temp := final + ".tmp"
	if err := os.WriteFile(temp, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	if err := os.Rename(temp, final); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	return nil
}

// Pull reads every *.json snapshot under the root in name order. A file
// that cannot be read or parsed is skipped: a corrupt or concurrently
// replaced entry must never abort the pull.
func (t *DirectoryTransport) Pull(exclude string) ([]Snapshot, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return nil, fmt.Errorf("pull snapshots: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if exclude != "" && strings.TrimSuffix(name, ".json") == exclude {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	snapshots := make([]Snapshot, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(t.root, name))
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}
