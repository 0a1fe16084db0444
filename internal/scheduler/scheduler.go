// Package scheduler runs analyses: it fans a URL list out to a bounded worker
// pool, waits for every task to finish, and ranks the run's table.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/dispatcher"
	"github.com/JakeFAU/signal-tally/internal/metrics"
	"github.com/JakeFAU/signal-tally/internal/progress"
	"github.com/JakeFAU/signal-tally/internal/queue/memory"
	"github.com/JakeFAU/signal-tally/internal/worker"
)

// ErrScheduling marks pool-level failures: the run could not be set up or
// its tasks could not be submitted.
var ErrScheduling = errors.New("scheduling failed")

// DefaultPoolSize is the number of workers per run when none is configured.
const DefaultPoolSize = 10

const tracerName = "github.com/JakeFAU/signal-tally/internal/scheduler"

// Config controls pool sizing and deadlines.
type Config struct {
	// PoolSize is the fixed worker count per run, independent of URL count.
	PoolSize int
	// TaskTimeout bounds each URL's extraction. Zero disables it.
	TaskTimeout time.Duration
	// DrainTimeout bounds a whole run. On expiry the run is returned as
	// partial. Zero disables it.
	DrainTimeout time.Duration
}

// Scheduler executes runs. Concurrent runs share nothing but the registered
// extractors, so one Scheduler may serve many callers at once.
type Scheduler struct {
	extractors map[analysis.Mode]analysis.Extractor
	cfg        Config
	ids        analysis.IDGenerator
	clock      analysis.Clock
	emitter    progress.Emitter
	tracer     trace.Tracer
	logger     *zap.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithIDGenerator sets the run ID source.
func WithIDGenerator(ids analysis.IDGenerator) Option {
	return func(s *Scheduler) { s.ids = ids }
}

// WithClock sets the clock used for timestamps.
func WithClock(clock analysis.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithEmitter sets the progress emitter shared by the scheduler and workers.
func WithEmitter(emitter progress.Emitter) Option {
	return func(s *Scheduler) { s.emitter = emitter }
}

// WithTracer sets the tracer used for run and task spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = tracer }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New builds a Scheduler with one extractor per mode. A later extractor for
// the same mode replaces an earlier one.
func New(cfg Config, extractors []analysis.Extractor, opts ...Option) *Scheduler {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	s := &Scheduler{
		extractors: make(map[analysis.Mode]analysis.Extractor, len(extractors)),
		cfg:        cfg,
		ids:        &sequence{},
		clock:      wallClock{},
		emitter:    progress.Discard,
		tracer:     otel.Tracer(tracerName),
		logger:     zap.NewNop(),
	}
	for _, e := range extractors {
		if e != nil {
			s.extractors[e.Mode()] = e
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extractor returns the extractor registered for mode.
func (s *Scheduler) Extractor(mode analysis.Mode) (analysis.Extractor, bool) {
	e, ok := s.extractors[mode]
	return e, ok
}

// Run analyzes urls with the extractor registered for mode.
func (s *Scheduler) Run(ctx context.Context, mode analysis.Mode, urls []string) (analysis.Result, error) {
	extractor, ok := s.Extractor(mode)
	if !ok {
		return analysis.Result{}, fmt.Errorf("%w: %w: %q", ErrScheduling, analysis.ErrUnknownMode, mode)
	}
	return s.RunWith(ctx, urls, extractor)
}

// RunWith analyzes urls with extractor and blocks until every task has
// finished, the drain deadline passes, or ctx is canceled. Per-URL failures
// never fail the run. When the drain deadline passes the partially filled
// table is ranked and returned with Partial set. When ctx is canceled the
// partial result is returned together with an error wrapping ctx.Err().
func (s *Scheduler) RunWith(ctx context.Context, urls []string, extractor analysis.Extractor) (res analysis.Result, err error) {
	if extractor == nil {
		return analysis.Result{}, fmt.Errorf("%w: no extractor", ErrScheduling)
	}
	mode := extractor.Mode()
	runID, err := s.ids.NewID()
	if err != nil {
		return analysis.Result{}, fmt.Errorf("%w: run id: %w", ErrScheduling, err)
	}
	ctx, span := s.tracer.Start(ctx, "scheduler.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.mode", string(mode)),
		attribute.Int("run.urls", len(urls)),
	))
	defer func() {
		span.SetAttributes(
			attribute.Bool("run.partial", res.Partial),
			attribute.Int("run.signals", len(res.Entries)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := s.clock.Now()
	result := analysis.Result{
		RunID:     runID,
		Mode:      mode,
		Title:     mode.Title(),
		Entries:   []analysis.RankedEntry{},
		StartedAt: start,
	}
	logger := s.logger.With(zap.String("run_id", runID), zap.String("mode", string(mode)))
	if len(urls) == 0 {
		logger.Info("run has no urls")
		metrics.ObserveRun(string(mode), "empty", 0)
		return result, nil
	}

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	table := analysis.NewTable()
	queue := memory.NewQueue(len(urls))
	pool := dispatcher.New(queue, s.workers(queue, logger))
	s.emitRun(runID, mode, progress.StageRunStart, 0, false, 0, "")
	logger.Info("run started", zap.Int("urls", len(urls)), zap.Int("workers", pool.Size()))
	done := pool.Start(runCtx)

	if err := s.submit(runCtx, pool, queue, runID, mode, urls, extractor, table); err != nil {
		cancel()
		<-done
		elapsed := s.clock.Now().Sub(start)
		logger.Error("run scheduling failed", zap.Error(err))
		metrics.ObserveRun(string(mode), "error", elapsed)
		s.emitRun(runID, mode, progress.StageRunError, 0, false, elapsed, err.Error())
		return analysis.Result{}, err
	}

	var runErr error
	select {
	case <-done:
	case <-runCtx.Done():
		result.Partial = true
		if ctx.Err() != nil {
			runErr = fmt.Errorf("run %s interrupted: %w", runID, ctx.Err())
		}
		<-done
	}
	table.Seal()

	result.Entries = analysis.Rank(table.Snapshot())
	result.Duration = s.clock.Now().Sub(start)
	outcome := "complete"
	switch {
	case runErr != nil:
		outcome = "canceled"
	case result.Partial:
		outcome = "partial"
		logger.Warn("run drain deadline reached, returning partial result",
			zap.Duration("drain_timeout", s.cfg.DrainTimeout))
	}
	metrics.ObserveRun(string(mode), outcome, result.Duration)
	if runErr != nil {
		s.emitRun(runID, mode, progress.StageRunError, len(result.Entries), true, result.Duration, runErr.Error())
	} else {
		s.emitRun(runID, mode, progress.StageRunDone, len(result.Entries), result.Partial, result.Duration, "")
	}
	logger.Info("run finished",
		zap.String("outcome", outcome),
		zap.Int("signals", len(result.Entries)),
		zap.Duration("elapsed", result.Duration),
	)
	return result, runErr
}

// submit enqueues one task per URL and closes the queue so workers exit once
// it drains.
func (s *Scheduler) submit(
	ctx context.Context,
	pool *dispatcher.Dispatcher,
	queue *memory.Queue,
	runID string,
	mode analysis.Mode,
	urls []string,
	extractor analysis.Extractor,
	table *analysis.Table,
) error {
	defer queue.Close()
	for _, url := range urls {
		task := analysis.Task{
			RunID:     runID,
			URL:       url,
			Mode:      mode,
			Extractor: extractor,
			Table:     table,
		}
		if err := pool.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("%w: %w", ErrScheduling, err)
		}
	}
	return nil
}

func (s *Scheduler) workers(queue analysis.Queue, logger *zap.Logger) []*worker.Worker {
	workers := make([]*worker.Worker, 0, s.cfg.PoolSize)
	for i := 0; i < s.cfg.PoolSize; i++ {
		workers = append(workers, worker.New(
			queue, s.clock, s.emitter,
			worker.Config{TaskTimeout: s.cfg.TaskTimeout, Tracer: s.tracer},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return workers
}

func (s *Scheduler) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.DrainTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.DrainTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Scheduler) emitRun(
	runID string,
	mode analysis.Mode,
	stage progress.Stage,
	signals int,
	partial bool,
	dur time.Duration,
	note string,
) {
	s.emitter.Emit(progress.Event{
		RunID:   runID,
		TS:      s.clock.Now().UTC(),
		Stage:   stage,
		Mode:    string(mode),
		Signals: signals,
		Partial: partial,
		Dur:     dur,
		Note:    note,
	})
}
