package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/echomem/internal/memory"
)

//go:embed schema.sql
var schemaSQL string

// Archive wraps the SQLite database holding archived executions and
// metric samples.
type Archive struct {
	db *sql.DB

	now func() time.Time
}

// Open creates or opens the archive database at the given path and
// applies pragmas and schema. Idempotent - safe to call multiple times.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect archive: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}

	return &Archive{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// RecordContext archives one execution context and its metric samples.
// Idempotent on fingerprint: returns false when the context is already
// archived, in which case nothing is written.
func (a *Archive) RecordContext(ctx context.Context, ec memory.ExecutionContext) (bool, error) {
	fingerprint, err := ec.Fingerprint()
	if err != nil {
		return false, fmt.Errorf("archive context: %w", err)
	}
	payload, err := ec.PayloadWithFingerprint()
	if err != nil {
		return false, fmt.Errorf("archive context: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("archive context: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("archive context: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var cycle any
	if ec.Cycle != nil {
		cycle = *ec.Cycle
	}
	var artifact, summary any
	if ec.Artifact != nil {
		artifact = *ec.Artifact
	}
	if ec.Summary != nil {
		summary = *ec.Summary
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO executions
		(fingerprint, timestamp, cycle, artifact, summary, payload, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`,
		fingerprint,
		ec.Timestamp,
		cycle,
		artifact,
		summary,
		string(payloadJSON),
		a.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("archive context: insert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive context: rows affected: %w", err)
	}
	if rows == 0 {
		// Already archived - metric samples were written with it.
		return false, nil
	}

	for _, name := range sortedMetricNames(ec.Metrics) {
		for _, sample := range ec.Metrics[name] {
			metadataJSON, err := json.Marshal(sample.Metadata)
			if err != nil {
				return false, fmt.Errorf("archive metric %q: %w", name, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO metrics
				(fingerprint, name, value, unit, metadata, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`,
				fingerprint,
				name,
				sample.Value,
				sample.Unit,
				string(metadataJSON),
				sample.RecordedAt,
			)
			if err != nil {
				return false, fmt.Errorf("archive metric %q: %w", name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("archive context: commit: %w", err)
	}
	return true, nil
}

// MetricRow is one archived metric sample.
type MetricRow struct {
	Fingerprint string
	Name        string
	Value       float64
	Unit        string
	Metadata    map[string]any
	RecordedAt  string
}

// LatestMetrics returns the most recently archived metric samples,
// newest first.
func (a *Archive) LatestMetrics(ctx context.Context, limit int) ([]MetricRow, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT fingerprint, name, value, unit, metadata, recorded_at
		FROM metrics
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest metrics: %w", err)
	}
	defer rows.Close()

	out := []MetricRow{}
	for rows.Next() {
		var row MetricRow
		var unit, metadata sql.NullString
		if err := rows.Scan(&row.Fingerprint, &row.Name, &row.Value, &unit, &metadata, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("latest metrics: scan: %w", err)
		}
		row.Unit = unit.String
		if metadata.Valid && metadata.String != "" {
			// Malformed metadata degrades to nil rather than failing the query.
			_ = json.Unmarshal([]byte(metadata.String), &row.Metadata)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latest metrics: %w", err)
	}
	return out, nil
}

// ExecutionRow is the archived summary of one context.
type ExecutionRow struct {
	Fingerprint string
	Timestamp   string
	Cycle       *int
	Artifact    string
	Summary     string
	ArchivedAt  string
}

// Executions returns archived contexts in timestamp order, oldest first.
func (a *Archive) Executions(ctx context.Context, limit int) ([]ExecutionRow, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT fingerprint, timestamp, cycle, artifact, summary, archived_at
		FROM executions
		ORDER BY timestamp ASC, fingerprint ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	out := []ExecutionRow{}
	for rows.Next() {
		var row ExecutionRow
		var cycle sql.NullInt64
		var artifact, summary sql.NullString
		if err := rows.Scan(&row.Fingerprint, &row.Timestamp, &cycle, &artifact, &summary, &row.ArchivedAt); err != nil {
			return nil, fmt.Errorf("list executions: scan: %w", err)
		}
		if cycle.Valid {
			n := int(cycle.Int64)
			row.Cycle = &n
		}
		row.Artifact = artifact.String
		row.Summary = summary.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return out, nil
}

func sortedMetricNames(metrics map[string][]memory.MetricSample) []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	// Deterministic insert order keeps metric row ids stable for a
	// given context.
	sort.Strings(names)
	return names
}
