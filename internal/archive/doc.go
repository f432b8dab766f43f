// Package archive provides a SQLite-backed queryable index of execution
// memory: one row per context plus a flattened table of metric samples.
//
// The archive is derived data. The JSON store file remains the source of
// truth for replication; the archive exists so that metrics and run
// history can be queried without scanning the whole document. Ingestion
// is idempotent on fingerprint, mirroring replica ingestion semantics,
// so re-exporting a store is always safe.
package archive
