package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/echomem/internal/memory"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func testContext(run string) memory.ExecutionContext {
	cycle := 3
	artifact := "outputs/model.bin"
	return memory.ExecutionContext{
		Timestamp:           "2026-08-29T10:00:00Z",
		Commands:            []memory.CommandRecord{{Name: "train", RecordedAt: "2026-08-29T10:00:01Z"}},
		DatasetFingerprints: map[string]memory.DatasetFingerprint{},
		Validations:         []memory.ValidationRecord{},
		Metadata:            map[string]any{"run": run},
		Cycle:               &cycle,
		Artifact:            &artifact,
		Metrics: map[string][]memory.MetricSample{
			"latency": {
				{Value: 12.5, Unit: "ms", RecordedAt: "2026-08-29T10:00:02Z"},
				{Value: 11, Unit: "ms", Metadata: map[string]any{"phase": "warm"}, RecordedAt: "2026-08-29T10:00:03Z"},
			},
		},
	}
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	first, err := Open(path)
	require.NoError(t, err)
	inserted, err := first.RecordContext(context.Background(), testContext("e1"))
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, first.Close())

	// Reopening applies pragmas and schema again without clobbering data.
	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	executions, err := second.Executions(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestRecordContextIdempotentOnFingerprint(t *testing.T) {
	a := openTestArchive(t)
	ec := testContext("e1")

	inserted, err := a.RecordContext(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = a.RecordContext(context.Background(), ec)
	require.NoError(t, err)
	assert.False(t, inserted)

	executions, err := a.Executions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)

	// Metric rows were not duplicated either.
	metrics, err := a.LatestMetrics(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, metrics, 2)
}

func TestRecordContextRow(t *testing.T) {
	a := openTestArchive(t)
	ec := testContext("e1")
	fingerprint, err := ec.Fingerprint()
	require.NoError(t, err)

	_, err = a.RecordContext(context.Background(), ec)
	require.NoError(t, err)

	executions, err := a.Executions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)

	row := executions[0]
	assert.Equal(t, fingerprint, row.Fingerprint)
	assert.Equal(t, "2026-08-29T10:00:00Z", row.Timestamp)
	require.NotNil(t, row.Cycle)
	assert.Equal(t, 3, *row.Cycle)
	assert.Equal(t, "outputs/model.bin", row.Artifact)
	assert.NotEmpty(t, row.ArchivedAt)
}

func TestRecordContextWithoutOptionalFields(t *testing.T) {
	a := openTestArchive(t)
	ec := memory.ExecutionContext{
		Timestamp:           "2026-08-29T09:00:00Z",
		Commands:            []memory.CommandRecord{},
		DatasetFingerprints: map[string]memory.DatasetFingerprint{},
		Validations:         []memory.ValidationRecord{},
		Metadata:            map[string]any{},
		Metrics:             map[string][]memory.MetricSample{},
	}

	inserted, err := a.RecordContext(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, inserted)

	executions, err := a.Executions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Nil(t, executions[0].Cycle)
	assert.Empty(t, executions[0].Artifact)
	assert.Empty(t, executions[0].Summary)
}

func TestLatestMetricsNewestFirst(t *testing.T) {
	a := openTestArchive(t)

	_, err := a.RecordContext(context.Background(), testContext("e1"))
	require.NoError(t, err)

	metrics, err := a.LatestMetrics(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	// The later sample comes back first.
	assert.Equal(t, 11.0, metrics[0].Value)
	assert.Equal(t, "warm", metrics[0].Metadata["phase"])
	assert.Equal(t, 12.5, metrics[1].Value)
	assert.Equal(t, "ms", metrics[1].Unit)

	limited, err := a.LatestMetrics(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 11.0, limited[0].Value)
}

func TestExecutionsOrderedByTimestamp(t *testing.T) {
	a := openTestArchive(t)

	later := testContext("late")
	later.Timestamp = "2026-08-29T12:00:00Z"
	earlier := testContext("early")
	earlier.Timestamp = "2026-08-29T08:00:00Z"

	for _, ec := range []memory.ExecutionContext{later, earlier} {
		_, err := a.RecordContext(context.Background(), ec)
		require.NoError(t, err)
	}

	executions, err := a.Executions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "2026-08-29T08:00:00Z", executions[0].Timestamp)
	assert.Equal(t, "2026-08-29T12:00:00Z", executions[1].Timestamp)
}
