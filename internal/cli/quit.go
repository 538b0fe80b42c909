package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/zkbstore/internal/control"
)

// QuitOptions holds flags for the quit command.
type QuitOptions struct {
	*RootOptions
	RedisURL string
	Channel  string
}

// NewQuitCommand creates the quit command.
func NewQuitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "quit",
		Short: "Ask running instances to stop",
		Long: `Publish a quit command on the control channel. Every run or backfill
listening on the channel finishes its in-flight killmails and exits.

Example:
  zkbstore quit --redis-url redis://localhost:6379/0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RedisURL, "redis-url", "", "Redis URL of the control channel (overrides config)")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "control channel name (overrides config)")

	return cmd
}

// quitResult reports how many listeners received the command.
type quitResult struct {
	Channel   string `json:"channel"`
	Receivers int64  `json:"receivers"`
}

func (r quitResult) Text() string {
	return fmt.Sprintf("quit sent on %s, %d listener(s) notified", r.Channel, r.Receivers)
}

func runQuit(cmd *cobra.Command, opts *QuitOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.RedisURL != "" {
		cfg.Control.RedisURL = opts.RedisURL
	}
	if opts.Channel != "" {
		cfg.Control.Channel = opts.Channel
	}
	if cfg.Control.RedisURL == "" {
		return NewExitError(ExitCommandError, "no control channel configured: set control.redis_url, ZKB_REDIS_URL or --redis-url")
	}

	client, err := control.Connect(cfg.Control.RedisURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid control channel", err)
	}
	defer client.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	n, err := control.Publish(ctx, client, cfg.Control.Channel, control.Quit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to publish quit", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(quitResult{Channel: cfg.Control.Channel, Receivers: n})
}
