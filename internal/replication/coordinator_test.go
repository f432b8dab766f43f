package replication

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/echomem/internal/memory"
)

// newTestNode builds one replication participant: its own store plus a
// coordinator over a shared transport root.
func newTestNode(t *testing.T, root, nodeID string) (*memory.Store, *Coordinator) {
	t.Helper()
	dir := t.TempDir()
	store := memory.NewStore(
		filepath.Join(dir, "memory_store.json"),
		filepath.Join(dir, "EXECUTION_LOG.md"),
	)
	require.NoError(t, store.Initialize())

	transport, err := NewDirectoryTransport(root)
	require.NoError(t, err)
	return store, NewCoordinator(nodeID, store, transport)
}

func recordExecution(t *testing.T, store *memory.Store, run string) string {
	t.Helper()
	session := store.Session(map[string]any{"run": run})
	session.RecordCommand("simulate", "")
	require.NoError(t, session.Close())

	contexts, err := store.RecentExecutions(memory.QueryOptions{})
	require.NoError(t, err)
	fingerprint, err := contexts[len(contexts)-1].Fingerprint()
	require.NoError(t, err)
	return fingerprint
}

func storedFingerprints(t *testing.T, store *memory.Store) map[string]bool {
	t.Helper()
	contexts, err := store.RecentExecutions(memory.QueryOptions{})
	require.NoError(t, err)
	out := make(map[string]bool, len(contexts))
	for _, ctx := range contexts {
		fingerprint, err := ctx.Fingerprint()
		require.NoError(t, err)
		out[fingerprint] = true
	}
	return out
}

func TestSyncFirstNodePublishesWithoutPeers(t *testing.T) {
	root := t.TempDir()
	alphaStore, alpha := newTestNode(t, root, "alpha")
	recordExecution(t, alphaStore, "e1")

	report, err := alpha.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 0, KnownContexts: 1, SourcesContacted: 0}, report)

	// The full state landed as this node's snapshot file.
	raw, err := os.ReadFile(filepath.Join(root, "alpha.json"))
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "alpha", snap.Node)
	assert.Len(t, snap.State, 1)
}

func TestSyncWithNoLocalHistoryAndNoPeers(t *testing.T) {
	_, alpha := newTestNode(t, t.TempDir(), "alpha")

	report, err := alpha.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestSyncAppliesPeerContexts(t *testing.T) {
	root := t.TempDir()
	alphaStore, alpha := newTestNode(t, root, "alpha")
	betaStore, beta := newTestNode(t, root, "beta")

	fingerprint := recordExecution(t, alphaStore, "e1")
	_, err := alpha.Sync()
	require.NoError(t, err)

	report, err := beta.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 1, KnownContexts: 1, SourcesContacted: 1}, report)

	replicated := storedFingerprints(t, betaStore)
	assert.True(t, replicated[fingerprint], "replicated context keeps its fingerprint")

	// The replica's log records where the context came from.
	contexts, err := betaStore.RecentExecutions(memory.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, contexts, 1)
	assert.Equal(t, "e1", contexts[0].Metadata["run"])
}

func TestSyncRepeatAppliesNothingNew(t *testing.T) {
	root := t.TempDir()
	alphaStore, alpha := newTestNode(t, root, "alpha")
	_, beta := newTestNode(t, root, "beta")

	recordExecution(t, alphaStore, "e1")
	_, err := alpha.Sync()
	require.NoError(t, err)
	_, err = beta.Sync()
	require.NoError(t, err)

	report, err := beta.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 0, KnownContexts: 1, SourcesContacted: 1}, report)
}

func TestSyncConvergesConcurrentWrites(t *testing.T) {
	root := t.TempDir()
	alphaStore, alpha := newTestNode(t, root, "alpha")
	betaStore, beta := newTestNode(t, root, "beta")

	e1 := recordExecution(t, alphaStore, "e1")
	e2 := recordExecution(t, betaStore, "e2")

	report, err := alpha.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 0, KnownContexts: 1, SourcesContacted: 0}, report)

	report, err = beta.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 1, KnownContexts: 2, SourcesContacted: 1}, report)

	report, err = alpha.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 1, KnownContexts: 2, SourcesContacted: 1}, report)

	want := map[string]bool{e1: true, e2: true}
	assert.Equal(t, want, storedFingerprints(t, alphaStore))
	assert.Equal(t, want, storedFingerprints(t, betaStore))
}

func TestSyncSurvivesCorruptPeerFile(t *testing.T) {
	root := t.TempDir()
	alphaStore, alpha := newTestNode(t, root, "alpha")

	recordExecution(t, alphaStore, "e1")
	require.NoError(t, os.WriteFile(filepath.Join(root, "beta.json"), []byte("{garbage"), 0o644))

	report, err := alpha.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 0, KnownContexts: 1, SourcesContacted: 0}, report)
}

func TestSyncSkipsMalformedPeerEntries(t *testing.T) {
	root := t.TempDir()
	alphaStore, alpha := newTestNode(t, root, "alpha")

	// A peer snapshot carrying one well-formed envelope and one entry
	// with a broken clock.
	ctx := memory.ExecutionContext{
		Timestamp:           "2026-08-29T10:00:00Z",
		Commands:            []memory.CommandRecord{},
		DatasetFingerprints: map[string]memory.DatasetFingerprint{},
		Validations:         []memory.ValidationRecord{},
		Metadata:            map[string]any{"run": "peer"},
		Metrics:             map[string][]memory.MetricSample{},
	}
	fingerprint, err := ctx.Fingerprint()
	require.NoError(t, err)
	value, err := marshalValue(ContextEnvelope{Context: ctx, Replica: map[string]any{"origin": "beta"}})
	require.NoError(t, err)

	transport, err := NewDirectoryTransport(root)
	require.NoError(t, err)
	require.NoError(t, transport.Push("beta", Snapshot{
		Node:      "beta",
		UpdatedAt: "2026-08-29T10:01:00Z",
		State: map[string]SnapshotEntry{
			fingerprint: {Clock: json.RawMessage(`{"node":"beta","tick":1}`), Value: value},
			"broken":    {Clock: json.RawMessage(`{"tick":true}`), Value: json.RawMessage(`"x"`)},
		},
	}))

	report, err := alpha.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 1, KnownContexts: 1, SourcesContacted: 1}, report)
	assert.True(t, storedFingerprints(t, alphaStore)[fingerprint])
}

func TestSyncIgnoresOpaquePeerValues(t *testing.T) {
	root := t.TempDir()
	alphaStore, alpha := newTestNode(t, root, "alpha")

	transport, err := NewDirectoryTransport(root)
	require.NoError(t, err)
	require.NoError(t, transport.Push("beta", Snapshot{
		Node:      "beta",
		UpdatedAt: "2026-08-29T10:01:00Z",
		State: map[string]SnapshotEntry{
			"side-channel": {
				Clock: json.RawMessage(`{"node":"beta","tick":1}`),
				Value: json.RawMessage(`{"future_field":true}`),
			},
		},
	}))

	report, err := alpha.Sync()
	require.NoError(t, err)
	// The opaque value is merged and republished but never ingested.
	assert.Equal(t, Report{AppliedContexts: 0, KnownContexts: 1, SourcesContacted: 1}, report)
	assert.Empty(t, storedFingerprints(t, alphaStore))

	raw, err := os.ReadFile(filepath.Join(root, "alpha.json"))
	require.NoError(t, err)
	var published Snapshot
	require.NoError(t, json.Unmarshal(raw, &published))
	assert.Contains(t, published.State, "side-channel")
}

func TestSyncSeedsStoredHistoryOnce(t *testing.T) {
	root := t.TempDir()
	alphaStore, alpha := newTestNode(t, root, "alpha")

	recordExecution(t, alphaStore, "e1")
	_, err := alpha.Sync()
	require.NoError(t, err)

	// A context recorded between rounds is picked up by the next sync;
	// the earlier one is not reseeded.
	recordExecution(t, alphaStore, "e2")
	report, err := alpha.Sync()
	require.NoError(t, err)
	assert.Equal(t, Report{AppliedContexts: 0, KnownContexts: 2, SourcesContacted: 0}, report)
}
