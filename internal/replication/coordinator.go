package replication

import (
	"sort"
	"time"

	"github.com/roach88/echomem/internal/crdt"
	"github.com/roach88/echomem/internal/memory"
)

// Report summarizes one synchronization pass.
type Report struct {
	AppliedContexts  int `json:"applied_contexts"`
	KnownContexts    int `json:"known_contexts"`
	SourcesContacted int `json:"sources_contacted"`
}

// Coordinator orchestrates replication for one node: it seeds local
// history into a private LWWMap, merges peer snapshots, ingests newly
// revealed contexts into the store, and republishes its own state.
//
// Two coordinators must never share a node id concurrently — tick
// counters live only in process memory and the transport protects one
// writer per file, not per logical node.
type Coordinator struct {
	nodeID    string
	store     *memory.Store
	transport Transport
	state     *crdt.LWWMap

	// now is swappable in tests for deterministic capture timestamps.
	now func() time.Time
}

// NewCoordinator creates a coordinator with an empty CRDT scoped to the
// node. Local history is seeded on each Sync, not at construction.
func NewCoordinator(nodeID string, store *memory.Store, transport Transport) *Coordinator {
	return &Coordinator{
		nodeID:    nodeID,
		store:     store,
		transport: transport,
		state:     crdt.NewLWWMap(nodeID),
		now:       time.Now,
	}
}

// NodeID returns this coordinator's node identifier.
func (c *Coordinator) NodeID() string {
	return c.nodeID
}

// Sync runs one replication round: seed, pull, merge, apply, publish.
// It always returns a report when it returns nil error — zero reachable
// peers or all-corrupt peer data degrade gracefully to an empty round.
// Only genuine I/O failures abort.
func (c *Coordinator) Sync() (Report, error) {
	if err := c.seedLocalContexts(); err != nil {
		return Report{}, err
	}

	before := c.state.State()

	snapshots, err := c.transport.Pull(c.nodeID)
	if err != nil {
		return Report{}, err
	}
	for _, snap := range snapshots {
		c.state.Merge(decodeState(snap))
	}

	merged := c.state.State()

	applied, err := c.applyNewContexts(before, merged)
	if err != nil {
		return Report{}, err
	}

	// Full state is republished every round, not just new keys.
	snap, err := encodeState(c.nodeID, c.timestamp(), merged)
	if err != nil {
		return Report{}, err
	}
	if err := c.transport.Push(c.nodeID, snap); err != nil {
		return Report{}, err
	}

	return Report{
		AppliedContexts:  applied,
		KnownContexts:    len(merged),
		SourcesContacted: len(snapshots),
	}, nil
}

// seedLocalContexts registers every stored context not yet present in
// the CRDT, keyed by fingerprint.
func (c *Coordinator) seedLocalContexts() error {
	contexts, err := c.store.RecentExecutions(memory.QueryOptions{})
	if err != nil {
		return err
	}

	existing := c.state.State()
	for _, ctx := range contexts {
		fingerprint, err := ctx.Fingerprint()
		if err != nil {
			return err
		}
		if _, ok := existing[fingerprint]; ok {
			continue
		}
		c.state.Set(fingerprint, ContextEnvelope{
			Context: ctx,
			Replica: map[string]any{
				"origin":      c.nodeID,
				"captured_at": c.timestamp(),
			},
		})
	}
	return nil
}

// applyNewContexts ingests contexts revealed by the merge. Keys are
// walked in sorted order for deterministic application; values without
// a context envelope are left in the CRDT untouched.
func (c *Coordinator) applyNewContexts(before, merged map[string]crdt.Entry) (int, error) {
	newKeys := make([]string, 0)
	for key := range merged {
		if _, ok := before[key]; !ok {
			newKeys = append(newKeys, key)
		}
	}
	sort.Strings(newKeys)

	applied := 0
	for _, key := range newKeys {
		envelope, ok := merged[key].Value.(ContextEnvelope)
		if !ok {
			continue
		}
		inserted, err := c.store.IngestReplica(envelope.Context, envelope.Replica)
		if err != nil {
			return applied, err
		}
		if inserted {
			applied++
		}
	}
	return applied, nil
}

func (c *Coordinator) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}
