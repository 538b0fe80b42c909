package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/zkbstore/internal/source"
)

// BackfillOptions holds flags for the backfill command.
type BackfillOptions struct {
	RunOptions
	First string
	Last  string
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackfillOptions{RunOptions: RunOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Store killmails from zKillboard daily history",
		Long: `Replay zKillboard daily history listings for a range of days, newest
first, through the same enrich and store pipeline as run. Killmails
already stored are skipped.

Example:
  zkbstore backfill --first 2024-01-01 --last 2024-01-31
  zkbstore backfill --first 2024-03-05 --last 2024-03-05 --db ./zkb.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			first, last, err := parseDayRange(opts.First, opts.Last)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid day range", err)
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			opts.apply(&cfg)

			logger := newLogger(opts.Verbose, cmd.ErrOrStderr())
			src, err := source.NewHistory(source.HistoryOptions{
				BaseURL:     cfg.Source.HistoryURL,
				First:       first,
				Last:        last,
				Concurrency: cfg.Source.HistoryWorkers,
				UserAgent:   cfg.ESI.UserAgent,
				Logger:      logger,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid day range", err)
			}
			logger.Info("backfill starting", "first", opts.First, "last", opts.Last, "days", len(src.Days()))
			return ingest(cmd, opts.RootOptions, cfg, src, opts.RunIDs, logger)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.First, "first", "", "first day to replay, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.Last, "last", "", "last day to replay, YYYY-MM-DD (defaults to --first)")
	_ = cmd.MarkFlagRequired("first")

	return cmd
}

func parseDayRange(firstArg, lastArg string) (time.Time, time.Time, error) {
	first, err := time.Parse(time.DateOnly, firstArg)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--first: %w", err)
	}
	if lastArg == "" {
		return first, first, nil
	}
	last, err := time.Parse(time.DateOnly, lastArg)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--last: %w", err)
	}
	if last.Before(first) {
		return time.Time{}, time.Time{}, fmt.Errorf("--last %s is before --first %s", lastArg, firstArg)
	}
	return first, last, nil
}
