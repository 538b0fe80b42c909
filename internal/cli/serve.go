package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/zkbstore/internal/status"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve status endpoints over a store without ingesting",
		Long: `Serve /health, /ready, /stats and /killmails/:id over an existing
store. Nothing is ingested; pipeline counters are absent.

Example:
  zkbstore serve --db ./zkb.db --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if opts.Database != "" {
				cfg.Database.Driver = "sqlite"
				cfg.Database.Path = opts.Database
			}
			addr := opts.Addr
			if addr == "" {
				addr = cfg.Status.Addr
			}
			if addr == "" {
				addr = ":8080"
			}

			logger := newLogger(opts.Verbose, cmd.ErrOrStderr())
			ctx, release := signalContext(cmd.Context(), logger)
			defer release()

			st, err := openBackend(ctx, cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open store", err)
			}
			defer func() {
				if closeErr := st.Close(); closeErr != nil {
					logger.Error("error closing store", "error", closeErr)
				}
			}()

			if err := status.Serve(ctx, addr, status.NewRouter(st, nil), logger); err != nil {
				return WrapExitError(ExitFailure, "status server failed", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database path (overrides config)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config, else :8080)")

	return cmd
}
