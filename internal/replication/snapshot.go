package replication

import (
	"encoding/json"
	"strconv"

	"github.com/roach88/echomem/internal/crdt"
)

// Snapshot is the per-node payload exchanged over a transport:
// {"node": ..., "updated_at": ..., "state": {key: {clock, value}}}.
type Snapshot struct {
	Node      string                   `json:"node"`
	UpdatedAt string                   `json:"updated_at"`
	State     map[string]SnapshotEntry `json:"state"`
}

// SnapshotEntry keeps clock and value raw so one malformed entry never
// poisons the rest of a snapshot. Validation happens entry by entry in
// decodeEntry.
type SnapshotEntry struct {
	Clock json.RawMessage `json:"clock"`
	Value json.RawMessage `json:"value"`
}

// encodeState builds the transport snapshot for a full CRDT state.
func encodeState(nodeID, updatedAt string, state map[string]crdt.Entry) (Snapshot, error) {
	out := Snapshot{
		Node:      nodeID,
		UpdatedAt: updatedAt,
		State:     make(map[string]SnapshotEntry, len(state)),
	}
	for key, entry := range state {
		clockRaw, err := json.Marshal(entry.Clock)
		if err != nil {
			return Snapshot{}, err
		}
		valueRaw, err := marshalValue(entry.Value)
		if err != nil {
			return Snapshot{}, err
		}
		out.State[key] = SnapshotEntry{Clock: clockRaw, Value: valueRaw}
	}
	return out, nil
}

// decodeState extracts the mergeable entries from a peer snapshot,
// dropping any individual entry that fails to parse.
func decodeState(snap Snapshot) map[string]crdt.Entry {
	decoded := make(map[string]crdt.Entry, len(snap.State))
	for key, raw := range snap.State {
		entry, ok := decodeEntry(raw)
		if !ok {
			continue
		}
		decoded[key] = entry
	}
	return decoded
}

// decodeEntry validates one (clock, value) pair. Returns false rather
// than an error: a malformed entry is recovered locally by skipping it,
// never propagated.
func decodeEntry(raw SnapshotEntry) (crdt.Entry, bool) {
	var clockFields map[string]any
	if err := json.Unmarshal(raw.Clock, &clockFields); err != nil {
		return crdt.Entry{}, false
	}
	node, ok := clockFields["node"].(string)
	if !ok {
		return crdt.Entry{}, false
	}
	tick, ok := tickValue(clockFields["tick"])
	if !ok {
		return crdt.Entry{}, false
	}
	return crdt.Entry{
		Clock: crdt.Clock{Node: node, Tick: tick},
		Value: decodeValue(raw.Value),
	}, true
}

// tickValue accepts the integer shapes peers have been observed to
// write: JSON numbers and stringified integers.
func tickValue(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
