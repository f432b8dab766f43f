package crdt

// Clock is the logical timestamp attached to one LWW entry: a per-key
// tick assigned by the writing node.
type Clock struct {
	Node string `json:"node"`
	Tick int64  `json:"tick"`
}

// Less reports whether c orders strictly before other. Ticks compare
// first; the node identifier is the lexicographic tie-break, so the
// order is total across nodes.
func (c Clock) Less(other Clock) bool {
	if c.Tick != other.Tick {
		return c.Tick < other.Tick
	}
	return c.Node < other.Node
}
