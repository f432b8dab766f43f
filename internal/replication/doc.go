// Package replication synchronizes execution memory across nodes.
//
// Each node owns one LWWMap keyed by context fingerprint. A sync round
// flows one direction: the local store seeds the map, peer snapshots are
// pulled and merged, newly revealed contexts are ingested back into the
// store, and the node's full state is republished. Repeated rounds are
// idempotent on the store (ingestion deduplicates by fingerprint) but
// not at the transport layer: the published snapshot is rewritten every
// round.
//
// The transport contract is deliberately small. Push replaces the
// current snapshot for a node; Pull returns the latest snapshot of every
// other node, silently omitting anything that fails to parse. The
// reference DirectoryTransport persists one file per node under a shared
// root with write-temp-then-rename, so readers never observe a
// half-written payload. A network transport implementing the same
// contract must add its own retry and timeout handling.
//
// Decoding is tolerant by construction: malformed snapshots are dropped
// at Pull, malformed individual entries are dropped by decodeEntry, and
// unrecognized value shapes survive as Opaque bytes instead of being
// lost. Only genuine I/O failures propagate out of Sync.
package replication
