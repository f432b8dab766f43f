package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/echomem/internal/memory"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit     int
	Filter    []string
	Since     string
	Until     string
	haveLimit bool
}

// NewHistoryCommand creates the history command: list stored execution
// contexts in append order with optional filters.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded execution contexts",
		Long: `List execution contexts in original append order.

Filters compose: metadata filters require exact equality on every
supplied key, since/until are inclusive timestamp bounds, and limit
keeps the most recent matches.

Examples:
  echomem history --limit 5
  echomem history --filter host=alpha --since 2026-01-01`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.haveLimit = cmd.Flags().Changed("limit")
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of contexts to return")
	cmd.Flags().StringArrayVar(&opts.Filter, "filter", nil, "metadata filter as key=value")
	cmd.Flags().StringVar(&opts.Since, "since", "", "inclusive lower timestamp bound")
	cmd.Flags().StringVar(&opts.Until, "until", "", "inclusive upper timestamp bound")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	store := memory.NewStore(cfg.StorePath, cfg.LogPath)
	if err := store.Initialize(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize store", err)
	}

	query := memory.QueryOptions{Since: opts.Since, Until: opts.Until}
	if opts.haveLimit {
		query.Limit = memory.Limit(opts.Limit)
	}
	if len(opts.Filter) > 0 {
		query.MetadataFilter = map[string]any{}
		for _, entry := range opts.Filter {
			key, value, ok := strings.Cut(entry, "=")
			if !ok {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --filter %q, want key=value", entry), nil)
			}
			query.MetadataFilter[key] = value
		}
	}

	contexts, err := store.RecentExecutions(query)
	if err != nil {
		if memory.IsQueryError(err) {
			return WrapExitError(ExitCommandError, "invalid query", err)
		}
		return WrapExitError(ExitFailure, "failed to read store", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.JSON(contexts)
	}

	if len(contexts) == 0 {
		formatter.Textf("no execution contexts recorded")
		return nil
	}

	heading := color.New(color.Bold)
	for _, ctx := range contexts {
		fingerprint, err := ctx.Fingerprint()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to fingerprint context", err)
		}
		cycle := "unknown"
		if ctx.Cycle != nil {
			cycle = fmt.Sprintf("%d", *ctx.Cycle)
		}
		heading.Fprintf(cmd.OutOrStdout(), "%s — cycle %s\n", ctx.Timestamp, cycle)
		formatter.Textf("  fingerprint: %s", fingerprint[:12])
		formatter.Textf("  commands: %d, validations: %d, datasets: %d",
			len(ctx.Commands), len(ctx.Validations), len(ctx.DatasetFingerprints))
		if ctx.Summary != nil && *ctx.Summary != "" {
			formatter.Textf("  summary: %s", strings.TrimSpace(*ctx.Summary))
		}
	}
	return nil
}
