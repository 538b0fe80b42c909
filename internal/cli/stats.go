package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/zkbstore/internal/killmail"
	"github.com/roach88/zkbstore/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database  string
	Character int64
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what the store holds",
		Long: `Print row counts of the store. With --character, also print the
character's kills and losses and its activity by UTC hour (SQLite only).

Example:
  zkbstore stats --db ./zkb.db
  zkbstore stats --db ./zkb.db --character 95465499 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database path (overrides config)")
	cmd.Flags().Int64Var(&opts.Character, "character", 0, "character id to report on")

	return cmd
}

// statsReport is the stats command result.
type statsReport struct {
	Counts    killmail.Counts  `json:"counts"`
	Character *characterReport `json:"character,omitempty"`
}

type characterReport struct {
	CharacterID int64     `json:"character_id"`
	Kills       int64     `json:"kills"`
	Losses      int64     `json:"losses"`
	Hourly      [24]int64 `json:"hourly"`
}

func (r statsReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "killmails:    %d\n", r.Counts.Killmails)
	fmt.Fprintf(&b, "participants: %d\n", r.Counts.Participants)
	fmt.Fprintf(&b, "hashes:       %d", r.Counts.Hashes)
	if c := r.Character; c != nil {
		fmt.Fprintf(&b, "\n\ncharacter %d: %d kills, %d losses\n", c.CharacterID, c.Kills, c.Losses)
		b.WriteString("hour  killmails")
		for h, n := range c.Hourly {
			if n > 0 {
				fmt.Fprintf(&b, "\n%02d    %d", h, n)
			}
		}
	}
	return b.String()
}

func runStats(cmd *cobra.Command, opts *StatsOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = opts.Database
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openBackend(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer st.Close()

	counts, err := st.Stats(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read counts", err)
	}
	report := statsReport{Counts: counts}

	if opts.Character != 0 {
		sq, ok := st.(*store.Store)
		if !ok {
			return NewExitError(ExitCommandError, "--character is only supported on the sqlite store")
		}
		wl, err := sq.WinLoss(ctx, opts.Character)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read kills and losses", err)
		}
		hourly, err := sq.HourlyActivity(ctx, opts.Character)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read hourly activity", err)
		}
		report.Character = &characterReport{
			CharacterID: opts.Character,
			Kills:       wl.Kills,
			Losses:      wl.Losses,
			Hourly:      hourly,
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(report)
}
