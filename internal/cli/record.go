package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/echomem/internal/memory"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Commands  []string
	Datasets  []string
	Annotate  []string
	Cycle     int
	Artifact  string
	Summary   string
	haveCycle bool
}

// NewRecordCommand creates the record command: build one execution
// session from flags and close it into the store.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one execution run into the memory store",
		Long: `Record a completed run as an immutable execution context.

Commands, dataset fingerprints, and metadata annotations are
accumulated into a session and frozen on close.

Examples:
  echomem record --command "train — epoch 3" --cycle 3
  echomem record --dataset pulse=pulse.json --annotate host=alpha`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.haveCycle = cmd.Flags().Changed("cycle")
			return runRecord(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Commands, "command", nil, "command to record, optionally 'name — detail'")
	cmd.Flags().StringArrayVar(&opts.Datasets, "dataset", nil, "dataset to fingerprint as name=path")
	cmd.Flags().StringArrayVar(&opts.Annotate, "annotate", nil, "metadata entry as key=value")
	cmd.Flags().IntVar(&opts.Cycle, "cycle", 0, "cycle number for this run")
	cmd.Flags().StringVar(&opts.Artifact, "artifact", "", "path of the run's primary artifact")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "free-form summary of the run")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	store := memory.NewStore(cfg.StorePath, cfg.LogPath)
	if err := store.Initialize(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize store", err)
	}

	metadata := map[string]any{}
	for _, entry := range opts.Annotate {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --annotate %q, want key=value", entry), nil)
		}
		metadata[key] = value
	}

	session := store.Session(metadata)

	for _, entry := range opts.Commands {
		name, detail, _ := strings.Cut(entry, " — ")
		session.RecordCommand(strings.TrimSpace(name), strings.TrimSpace(detail))
	}
	for _, entry := range opts.Datasets {
		name, path, ok := strings.Cut(entry, "=")
		if !ok {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --dataset %q, want name=path", entry), nil)
		}
		session.FingerprintDataset(name, path)
	}
	if opts.haveCycle {
		session.SetCycle(opts.Cycle)
	}
	if opts.Artifact != "" {
		session.SetArtifact(opts.Artifact)
	}
	if opts.Summary != "" {
		session.SetSummary(opts.Summary)
	}

	if err := session.Close(); err != nil {
		return WrapExitError(ExitFailure, "failed to persist execution context", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.JSON(map[string]any{"status": "recorded", "store": cfg.StorePath})
	}
	formatter.Textf("recorded execution context in %s", cfg.StorePath)
	return nil
}
