package replication

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/echomem/internal/memory"
)

// Value is the sealed union of payload shapes carried by CRDT entries.
// Only ContextEnvelope and Opaque implement it. An unrecognized shape
// written by a future peer stays Opaque so merging never loses it.
type Value interface {
	replicatedValue() // Sealed - only these types implement it
}

// ContextEnvelope carries one ExecutionContext plus metadata describing
// the replica that captured it.
type ContextEnvelope struct {
	Context memory.ExecutionContext
	Replica map[string]any
}

func (ContextEnvelope) replicatedValue() {}

// MarshalJSON emits the wire shape {"context": ..., "replica": ...} with
// the context's fingerprint appended.
func (e ContextEnvelope) MarshalJSON() ([]byte, error) {
	payload, err := e.Context.PayloadWithFingerprint()
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return json.Marshal(map[string]any{
		"context": payload,
		"replica": e.Replica,
	})
}

// Opaque holds a serialized value whose shape this build does not
// recognize. It round-trips byte-for-byte.
type Opaque json.RawMessage

func (Opaque) replicatedValue() {}

// MarshalJSON re-emits the original bytes unchanged.
func (o Opaque) MarshalJSON() ([]byte, error) {
	if len(o) == 0 {
		return []byte("null"), nil
	}
	return json.RawMessage(o), nil
}

// marshalValue serializes a CRDT entry value for transport.
func marshalValue(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case ContextEnvelope:
		return val.MarshalJSON()
	case Opaque:
		return val.MarshalJSON()
	default:
		return json.Marshal(val)
	}
}

// decodeValue classifies a raw entry value. Objects carrying a "context"
// mapping become ContextEnvelopes; everything else is preserved as
// Opaque bytes.
func decodeValue(raw json.RawMessage) Value {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if ctxPayload, ok := obj["context"].(map[string]any); ok {
			replica, _ := obj["replica"].(map[string]any)
			return ContextEnvelope{
				Context: memory.ContextFromPayload(ctxPayload),
				Replica: replica,
			}
		}
	}
	clone := make(json.RawMessage, len(raw))
	copy(clone, raw)
	return Opaque(clone)
}
