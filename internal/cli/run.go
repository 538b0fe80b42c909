package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/zkbstore/internal/config"
	"github.com/roach88/zkbstore/internal/control"
	"github.com/roach88/zkbstore/internal/esi"
	"github.com/roach88/zkbstore/internal/pgstore"
	"github.com/roach88/zkbstore/internal/pipeline"
	"github.com/roach88/zkbstore/internal/source"
	"github.com/roach88/zkbstore/internal/status"
	"github.com/roach88/zkbstore/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	Workers    int
	StatusAddr string

	// RunIDs overrides the run id generator (for testing).
	RunIDs pipeline.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Follow the killstream and store new killmails",
		Long: `Follow the zKillboard killstream, enrich each killmail from ESI and
store it. Runs until interrupted or until a quit command arrives on the
control channel.

Example:
  zkbstore run --db ./zkb.db
  zkbstore run --config zkb.yaml --status-addr :8080 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			opts.apply(&cfg)

			logger := newLogger(opts.Verbose, cmd.ErrOrStderr())
			src := source.NewKillstream(source.KillstreamOptions{
				URL:         cfg.Source.KillstreamURL,
				Channel:     cfg.Source.Channel,
				ReadTimeout: cfg.Source.ReadTimeout,
				MinBackoff:  cfg.Source.MinBackoff,
				MaxBackoff:  cfg.Source.MaxBackoff,
				UserAgent:   cfg.ESI.UserAgent,
				Logger:      logger,
			})
			return ingest(cmd, opts.RootOptions, cfg, src, opts.RunIDs, logger)
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func (o *RunOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "SQLite database path (overrides config)")
	cmd.Flags().IntVarP(&o.Workers, "workers", "w", 0, "number of enrich/persist workers (overrides config)")
	cmd.Flags().StringVar(&o.StatusAddr, "status-addr", "", "serve status endpoints on this address (overrides config)")
}

// apply lets flags win over the loaded configuration.
func (o *RunOptions) apply(cfg *config.Config) {
	if o.Database != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = o.Database
	}
	if o.Workers > 0 {
		cfg.Pipeline.Workers = o.Workers
	}
	if o.StatusAddr != "" {
		cfg.Status.Addr = o.StatusAddr
	}
}

// backend is what a command needs from either store.
type backend interface {
	pipeline.Store
	status.Reader
	Close() error
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	if cfg.Database.Driver == "postgres" {
		st, err := pgstore.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func newLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// signalContext is cancelled on SIGINT or SIGTERM. Call the returned
// function to release the signal handler.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// ingest runs src through the pipeline with the optional control listener
// and status server alongside, then prints the run summary.
func ingest(cmd *cobra.Command, opts *RootOptions, cfg config.Config, src pipeline.Source, runIDs pipeline.RunIDGenerator, logger *slog.Logger) error {
	ctx, release := signalContext(cmd.Context(), logger)
	defer release()

	logger.Info("opening store", "driver", cfg.Database.Driver)
	st, err := openBackend(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	enr := esi.New(esi.Options{
		BaseURL:        cfg.ESI.BaseURL,
		UserAgent:      cfg.ESI.UserAgent,
		Timeout:        cfg.ESI.Timeout,
		MaxAttempts:    cfg.ESI.MaxAttempts,
		InitialBackoff: cfg.ESI.InitialBackoff,
		MaxBackoff:     cfg.ESI.MaxBackoff,
		Logger:         logger,
	})

	p := pipeline.New(src, enr, st, pipeline.Options{
		Workers:        cfg.Pipeline.Workers,
		PersistTimeout: cfg.Pipeline.PersistTimeout,
		RunIDs:         runIDs,
		Logger:         logger,
	})

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup

	if cfg.Control.RedisURL != "" {
		client, err := control.Connect(cfg.Control.RedisURL)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid control channel", err)
		}
		defer client.Close()

		listener := control.NewListener(client, cfg.Control.Channel, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Listen(ctx, stop); err != nil {
				logger.Warn("control channel unavailable, continuing without it", "error", err)
			}
		}()
	}

	if cfg.Status.Addr != "" {
		router := status.NewRouter(st, p.Stats())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := status.Serve(ctx, cfg.Status.Addr, router, logger); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	runErr := p.Run(ctx)
	stop()
	wg.Wait()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if runErr != nil {
		return WrapExitError(ExitFailure, "pipeline failed", runErr)
	}
	if err := out.Success(runSummary(p.Stats().Snapshot())); err != nil {
		return WrapExitError(ExitFailure, "failed to write output", err)
	}
	return nil
}

// runSummary renders pipeline counters at the end of a run.
type runSummary pipeline.Snapshot

func (s runSummary) Text() string {
	return fmt.Sprintf("received=%d stored=%d seen=%d duplicates=%d header_exists=%d transient=%d permanent=%d integrity=%d failed=%d dropped=%d",
		s.Received, s.Stored, s.Seen, s.Duplicates, s.HeaderExists,
		s.Transient, s.Permanent, s.Integrity, s.Failed, s.Dropped)
}
