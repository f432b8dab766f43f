package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/echomem/internal/archive"
	"github.com/roach88/echomem/internal/memory"
)

// ArchiveOptions holds flags for the archive command.
type ArchiveOptions struct {
	*RootOptions
	Database string
	Metrics  int
}

// NewArchiveCommand creates the archive command: export the store into
// the SQLite archive and optionally query recent metrics.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArchiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export execution memory into the SQLite archive",
		Long: `Export every stored execution context into the queryable SQLite
archive. Export is idempotent on fingerprint, so re-running after new
executions only archives the delta.

With --metrics, the most recent archived metric samples are printed
after the export.

Examples:
  echomem archive
  echomem archive --db ./archive.db --metrics 20`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "archive database path (defaults to archive_path from config)")
	cmd.Flags().IntVar(&opts.Metrics, "metrics", 0, "print the N most recent metric samples after export")

	return cmd
}

func runArchive(opts *ArchiveOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.ArchivePath
	}

	store := memory.NewStore(cfg.StorePath, cfg.LogPath)
	if err := store.Initialize(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize store", err)
	}

	contexts, err := store.RecentExecutions(memory.QueryOptions{})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read store", err)
	}

	arc, err := archive.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer arc.Close()

	archived := 0
	for _, ec := range contexts {
		inserted, err := arc.RecordContext(ctx, ec)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to archive context", err)
		}
		if inserted {
			archived++
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var metrics []archive.MetricRow
	if opts.Metrics > 0 {
		metrics, err = arc.LatestMetrics(ctx, opts.Metrics)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to query metrics", err)
		}
	}

	if opts.Format == "json" {
		payload := map[string]any{
			"archived": archived,
			"total":    len(contexts),
			"database": dbPath,
		}
		if opts.Metrics > 0 {
			payload["metrics"] = metrics
		}
		return formatter.JSON(payload)
	}

	formatter.Textf("archived %d of %d contexts into %s", archived, len(contexts), dbPath)
	for _, row := range metrics {
		unit := ""
		if row.Unit != "" {
			unit = " " + row.Unit
		}
		formatter.Textf("  %s = %v%s (%s)", row.Name, row.Value, unit, row.RecordedAt)
	}
	return nil
}
