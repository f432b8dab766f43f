package crdt

// Entry is one stored (clock, value) pair. Values are opaque to the
// map; merge decisions look at clocks only.
type Entry struct {
	Clock Clock
	Value any
}

// LWWMap is a last-write-wins CRDT map owned by exactly one node. For a
// fixed key, at most one entry is retained: the maximum under Clock
// order across all local writes and merges observed.
//
// Not safe for concurrent use. The owning coordinator is single-threaded
// by design; see the sync model in internal/replication.
type LWWMap struct {
	node    string
	entries map[string]Entry

	// ticks tracks the last locally assigned tick per key, so a future
	// Set never produces a clock the map has already superseded.
	ticks map[string]int64
}

// NewLWWMap creates an empty map owned by the given node.
func NewLWWMap(node string) *LWWMap {
	return &LWWMap{
		node:    node,
		entries: map[string]Entry{},
		ticks:   map[string]int64{},
	}
}

// Node returns the owning node identifier.
func (m *LWWMap) Node() string {
	return m.node
}

// Set writes a value locally: the key's tick counter advances by one and
// the entry is stamped with this node's clock. O(1), purely local.
func (m *LWWMap) Set(key string, value any) {
	tick := m.ticks[key] + 1
	m.ticks[key] = tick
	m.entries[key] = Entry{
		Clock: Clock{Node: m.node, Tick: tick},
		Value: value,
	}
}

// Merge folds another map's state into this one. For each incoming
// entry, the local entry is replaced when absent or when the incoming
// clock is greater. Incoming entries stamped by this node raise the
// local tick counter to at least the observed tick, so later local Sets
// cannot generate already-superseded clocks.
func (m *LWWMap) Merge(other map[string]Entry) {
	for key, incoming := range other {
		current, ok := m.entries[key]
		if !ok || current.Clock.Less(incoming.Clock) {
			m.entries[key] = incoming
		}
		if incoming.Clock.Node == m.node && incoming.Clock.Tick > m.ticks[key] {
			m.ticks[key] = incoming.Clock.Tick
		}
	}
}

// Snapshot returns the key→value view with clocks dropped, for
// application use.
func (m *LWWMap) Snapshot() map[string]any {
	out := make(map[string]any, len(m.entries))
	for key, entry := range m.entries {
		out[key] = entry.Value
	}
	return out
}

// State returns a copy of the full key→(clock, value) mapping for
// transport encoding.
func (m *LWWMap) State() map[string]Entry {
	out := make(map[string]Entry, len(m.entries))
	for key, entry := range m.entries {
		out[key] = entry
	}
	return out
}

// Len returns the number of keys held.
func (m *LWWMap) Len() int {
	return len(m.entries)
}
