// Package memory implements the durable execution memory: immutable
// ExecutionContext records, the ExecutionSession builder that accumulates
// one run, and the file-backed Store that persists them.
//
// The store keeps two artifacts side by side:
//   - a JSON document {"executions": [...]} holding every context with an
//     appended "_fingerprint" field, rewritten in full on each mutation
//   - a human-readable Markdown log, strictly append-only
//
// Identity is content-addressed: a context's fingerprint is the SHA-256
// hex digest of its canonical serialization (internal/canonical) with the
// fingerprint field itself excluded. Two independently built but
// content-equal contexts hash identically; replica ingestion relies on
// this for idempotent deduplication.
//
// The whole-file rewrite makes the store single-writer. Callers sharing
// one store instance across goroutines must serialize access themselves;
// cross-process safety is limited to one process per store file.
package memory
