package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/zkbstore/internal/killmail"
)

// Source yields raw events. Run returns when the source is exhausted or
// ctx is cancelled.
type Source interface {
	Run(ctx context.Context, out chan<- killmail.Event) error
}

// Enricher fetches the full record for an event.
type Enricher interface {
	Fetch(ctx context.Context, ev killmail.Event) (killmail.Record, error)
}

// Store is the persistence boundary shared by the Gate and the workers.
type Store interface {
	Seen(ctx context.Context, fp killmail.Fingerprint) (bool, error)
	Persist(ctx context.Context, fp killmail.Fingerprint, h killmail.Header, participants []killmail.Participant) (killmail.Outcome, error)
}

// Gate is the Deduplicator's fast path. It never records anything;
// recording happens inside Store.Persist.
type Gate struct {
	store Store
}

// NewGate creates a Gate over the given store.
func NewGate(s Store) *Gate {
	return &Gate{store: s}
}

// AlreadySeen reports whether fp has a dedup record.
func (g *Gate) AlreadySeen(ctx context.Context, fp killmail.Fingerprint) (bool, error) {
	seen, err := g.store.Seen(ctx, fp)
	if err != nil {
		return false, fmt.Errorf("dedup gate: %w", err)
	}
	return seen, nil
}

// DefaultWorkers is the default size of the worker pool.
const DefaultWorkers = 4

// DefaultPersistTimeout bounds a persist that outlives cancellation.
const DefaultPersistTimeout = 30 * time.Second

// Options configures a Pipeline.
type Options struct {
	Workers        int
	Buffer         int // event channel capacity; defaults to Workers
	PersistTimeout time.Duration
	RunIDs         RunIDGenerator
	Clock          *Clock
	Logger         *slog.Logger
}

// Pipeline wires a source, an enricher and a store together.
type Pipeline struct {
	source   Source
	enricher Enricher
	store    Store
	gate     *Gate
	opts     Options
	stats    Stats
}

// New creates a Pipeline. Zero options get defaults.
func New(src Source, enr Enricher, st Store, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Buffer < 1 {
		opts.Buffer = opts.Workers
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	if opts.RunIDs == nil {
		opts.RunIDs = UUIDv7Generator{}
	}
	if opts.Clock == nil {
		opts.Clock = NewClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Pipeline{
		source:   src,
		enricher: enr,
		store:    st,
		gate:     NewGate(st),
		opts:     opts,
	}
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() *Stats {
	return &p.stats
}

// Run starts the source and the workers and blocks until the source is
// exhausted and all taken events are decided, or until ctx is cancelled.
//
// Cancellation is a clean stop and returns nil. A source error other than
// cancellation is returned after the workers finish.
func (p *Pipeline) Run(ctx context.Context) error {
	runID := p.opts.RunIDs.Generate()
	logger := p.opts.Logger.With("run_id", runID)
	logger.Info("pipeline starting", "workers", p.opts.Workers)

	events := make(chan killmail.Event, p.opts.Buffer)

	var srcErr error
	srcDone := make(chan struct{})
	go func() {
		defer close(srcDone)
		defer close(events)
		srcErr = p.source.Run(ctx, events)
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, logger.With("worker", worker), events)
		}(i)
	}

	wg.Wait()
	<-srcDone

	snap := p.stats.Snapshot()
	logger.Info("pipeline stopped",
		"received", snap.Received,
		"stored", snap.Stored,
		"seen", snap.Seen,
		"duplicates", snap.Duplicates,
		"transient", snap.Transient,
		"permanent", snap.Permanent,
	)

	if srcErr != nil && !errors.Is(srcErr, context.Canceled) && !errors.Is(srcErr, context.DeadlineExceeded) {
		return fmt.Errorf("source: %w", srcErr)
	}
	return nil
}

// work takes events until the channel closes or ctx is cancelled.
// Events still buffered at cancellation are left undecided.
func (p *Pipeline) work(ctx context.Context, logger *slog.Logger, events <-chan killmail.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handle(ctx, logger, ev)
		}
	}
}

// handle runs one event through the pipeline and records the result.
// It never panics on bad input and never returns an error: every failure
// ends in a log line and a counter.
func (p *Pipeline) handle(ctx context.Context, logger *slog.Logger, ev killmail.Event) {
	seq := p.opts.Clock.Next()
	p.stats.received.Add(1)
	logger = logger.With("seq", seq, "killmail_id", ev.KillmailID)

	outcome, fp, err := p.Process(ctx, ev)
	if !fp.IsZero() {
		logger = logger.With("fingerprint", fp.String())
	}

	switch {
	case err == nil && outcome == 0:
		p.stats.seen.Add(1)
		logger.Debug("skipping seen killmail")
	case err == nil:
		p.stats.recordOutcome(outcome)
		logger.Info("killmail persisted", "outcome", outcome.String())
	case ctx.Err() != nil && !killmail.IsPermanent(err):
		p.stats.dropped.Add(1)
		logger.Info("killmail dropped on shutdown", "stage", killmail.StageOf(err), "error", err)
	case killmail.IsTransient(err):
		p.stats.recordError(err)
		logger.Warn("killmail fetch failed, left for redelivery", "stage", killmail.StageOf(err), "error", err)
	default:
		p.stats.recordError(err)
		logger.Error("killmail rejected", "stage", failedStage(err), "kind", killmail.KindOf(err), "error", err)
	}
}

// Process runs fingerprint, gate, fetch, parse and persist for one event.
//
// A zero Outcome with a nil error means the gate skipped the event. The
// fingerprint is returned whenever it could be computed.
func (p *Pipeline) Process(ctx context.Context, ev killmail.Event) (killmail.Outcome, killmail.Fingerprint, error) {
	fp, err := killmail.FingerprintOf(ev.Hash)
	if err != nil {
		return 0, fp, killmail.NewPermanent(killmail.StageDedup, ev.KillmailID, "fingerprint", err)
	}

	seen, err := p.gate.AlreadySeen(ctx, fp)
	if err != nil {
		return 0, fp, killmail.NewTransient(killmail.StageDedup, ev.KillmailID, "check seen", err)
	}
	if seen {
		return 0, fp, nil
	}

	rec, err := p.enricher.Fetch(ctx, ev)
	if err != nil {
		return 0, fp, err
	}

	header, participants, err := killmail.Parse(rec)
	if err != nil {
		return 0, fp, err
	}

	// The persist decision must not be interrupted half way.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.PersistTimeout)
	defer cancel()

	outcome, err := p.store.Persist(pctx, fp, header, participants)
	if err != nil {
		return 0, fp, err
	}
	return outcome, fp, nil
}

// failedStage names the stage of err. Untyped errors only come from the store.
func failedStage(err error) killmail.Stage {
	if s := killmail.StageOf(err); s != "" {
		return s
	}
	return killmail.StagePersist
}
