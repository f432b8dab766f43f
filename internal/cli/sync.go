package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/echomem/internal/memory"
	"github.com/roach88/echomem/internal/replication"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Root string
}

// NewSyncCommand creates the sync command: run one replication round
// against the shared transport directory.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize execution memory with peers",
		Long: `Run one replication round: seed local history into the CRDT,
merge peer snapshots, ingest newly revealed contexts, and republish
this node's full state.

The transport root may be any shared directory (a synced folder, a
mounted volume). Repeated syncs never duplicate contexts.

Examples:
  echomem sync
  echomem sync --root /mnt/shared/echo-sync --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", "", "transport directory (defaults to sync_root from config)")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	root := opts.Root
	if root == "" {
		root = cfg.SyncRoot
	}

	store := memory.NewStore(cfg.StorePath, cfg.LogPath)
	if err := store.Initialize(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize store", err)
	}

	transport, err := replication.NewDirectoryTransport(root)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open transport root", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	formatter.VerboseLog("syncing node %s against %s", cfg.NodeID, root)

	coordinator := replication.NewCoordinator(cfg.NodeID, store, transport)
	report, err := coordinator.Sync()
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(report)
	}

	color.New(color.Bold).Fprintln(cmd.OutOrStdout(), "sync complete")
	formatter.Textf("  applied contexts:  %d", report.AppliedContexts)
	formatter.Textf("  known contexts:    %d", report.KnownContexts)
	formatter.Textf("  sources contacted: %d", report.SourcesContacted)
	return nil
}
