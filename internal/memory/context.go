package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/roach88/echomem/internal/canonical"
)

// FingerprintField is the key under which a context's fingerprint is
// appended when serialized into the store file or a transport envelope.
// It is always excluded from the fingerprint computation itself.
const FingerprintField = "_fingerprint"

// CommandRecord is one command executed during a run.
type CommandRecord struct {
	Name       string  `json:"name"`
	Detail     *string `json:"detail"`
	RecordedAt string  `json:"recorded_at"`
}

// DatasetFingerprint describes one dataset observed during a run: either
// a successful content hash or an error descriptor for a missing file.
type DatasetFingerprint struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
	Size   *int64 `json:"size,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ValidationRecord is one link in a session's tamper-evident ledger
// chain. PreviousHash equals the prior record's LedgerHash; the first
// record links to the genesis value of 64 zero characters.
type ValidationRecord struct {
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	Details      map[string]any `json:"details"`
	RecordedAt   string         `json:"recorded_at"`
	PreviousHash string         `json:"previous_hash"`
	LedgerHash   string         `json:"ledger_hash"`
}

// MetricSample is one observation of a named metric.
type MetricSample struct {
	Value      float64        `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RecordedAt string         `json:"recorded_at"`
}

// ExecutionContext is the immutable record of one completed run. It is
// created exactly once when an ExecutionSession closes and never mutated
// or deleted afterward.
type ExecutionContext struct {
	Timestamp           string                        `json:"timestamp"`
	Commands            []CommandRecord               `json:"commands"`
	DatasetFingerprints map[string]DatasetFingerprint `json:"dataset_fingerprints"`
	Validations         []ValidationRecord            `json:"validations"`
	Metadata            map[string]any                `json:"metadata"`
	Cycle               *int                          `json:"cycle"`
	Artifact            *string                       `json:"artifact"`
	Summary             *string                       `json:"summary"`
	Metrics             map[string][]MetricSample     `json:"metrics"`
}

// payload returns the context as the generic JSON shape that canonical
// serialization and persistence both consume. Round-tripping through
// encoding/json keeps the fingerprint independent of whether a context
// was built in memory or rehydrated from disk.
func (c ExecutionContext) payload() (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("context payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("context payload: %w", err)
	}
	return out, nil
}

// PayloadWithFingerprint returns the serializable payload with the
// "_fingerprint" field appended, the shape stored on disk and shipped to
// peers.
func (c ExecutionContext) PayloadWithFingerprint() (map[string]any, error) {
	payload, err := c.payload()
	if err != nil {
		return nil, err
	}
	fp, err := ComputeFingerprint(payload)
	if err != nil {
		return nil, err
	}
	payload[FingerprintField] = fp
	return payload, nil
}

// Fingerprint returns the deterministic content hash of this context.
func (c ExecutionContext) Fingerprint() (string, error) {
	payload, err := c.payload()
	if err != nil {
		return "", err
	}
	return ComputeFingerprint(payload)
}

// ComputeFingerprint hashes a serialized context payload, excluding any
// embedded fingerprint field. Used both for freshly built contexts and
// for store entries written before fingerprints were recorded.
func ComputeFingerprint(payload map[string]any) (string, error) {
	sanitized := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == FingerprintField {
			continue
		}
		sanitized[k] = v
	}
	data, err := canonical.Marshal(sanitized)
	if err != nil {
		return "", fmt.Errorf("compute fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ContextFromPayload rehydrates an ExecutionContext from serialized data.
// Decoding is tolerant: unknown fields are ignored and malformed
// individual fields fall back to zero values rather than failing the
// whole record. Replica ingestion depends on this when peers ship
// contexts written by other builds.
func ContextFromPayload(payload map[string]any) ExecutionContext {
	ctx := ExecutionContext{
		Timestamp:           asString(payload["timestamp"]),
		Commands:            commandsFromPayload(payload["commands"]),
		DatasetFingerprints: datasetsFromPayload(payload["dataset_fingerprints"]),
		Validations:         validationsFromPayload(payload["validations"]),
		Metadata:            asObject(payload["metadata"]),
		Metrics:             metricsFromPayload(payload["metrics"]),
	}
	// Rehydrated contexts carry the same non-nil collection shape that
	// sessions freeze, keeping fingerprints stable across a round-trip.
	if ctx.Commands == nil {
		ctx.Commands = []CommandRecord{}
	}
	if ctx.DatasetFingerprints == nil {
		ctx.DatasetFingerprints = map[string]DatasetFingerprint{}
	}
	if ctx.Validations == nil {
		ctx.Validations = []ValidationRecord{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	if ctx.Metrics == nil {
		ctx.Metrics = map[string][]MetricSample{}
	}
	if v, ok := asInt(payload["cycle"]); ok {
		ctx.Cycle = &v
	}
	if s, ok := payload["artifact"].(string); ok {
		ctx.Artifact = &s
	}
	if s, ok := payload["summary"].(string); ok {
		ctx.Summary = &s
	}
	return ctx
}

func commandsFromPayload(v any) []CommandRecord {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]CommandRecord, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := CommandRecord{
			Name:       asString(entry["name"]),
			RecordedAt: asString(entry["recorded_at"]),
		}
		if s, ok := entry["detail"].(string); ok {
			rec.Detail = &s
		}
		out = append(out, rec)
	}
	return out
}

func datasetsFromPayload(v any) map[string]DatasetFingerprint {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]DatasetFingerprint, len(obj))
	for name, item := range obj {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		df := DatasetFingerprint{
			Path:   asString(entry["path"]),
			SHA256: asString(entry["sha256"]),
			Error:  asString(entry["error"]),
		}
		if n, ok := asInt64(entry["size"]); ok {
			df.Size = &n
		}
		out[name] = df
	}
	return out
}

func validationsFromPayload(v any) []ValidationRecord {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]ValidationRecord, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, ValidationRecord{
			Name:         asString(entry["name"]),
			Status:       asString(entry["status"]),
			Details:      asObject(entry["details"]),
			RecordedAt:   asString(entry["recorded_at"]),
			PreviousHash: asString(entry["previous_hash"]),
			LedgerHash:   asString(entry["ledger_hash"]),
		})
	}
	return out
}

func metricsFromPayload(v any) map[string][]MetricSample {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]MetricSample, len(obj))
	for name, item := range obj {
		list, ok := item.([]any)
		if !ok {
			continue
		}
		samples := make([]MetricSample, 0, len(list))
		for _, raw := range list {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			sample := MetricSample{
				Unit:       asString(entry["unit"]),
				Metadata:   asObject(entry["metadata"]),
				RecordedAt: asString(entry["recorded_at"]),
			}
			if f, ok := entry["value"].(float64); ok {
				sample.Value = f
			}
			samples = append(samples, sample)
		}
		out[name] = samples
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
