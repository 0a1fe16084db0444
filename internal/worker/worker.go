// Package worker implements the task execution loop: dequeue a task, run its
// extractor under a deadline, and commit the contributions to the run table.
package worker

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
	"github.com/JakeFAU/signal-tally/internal/metrics"
	"github.com/JakeFAU/signal-tally/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// TaskTimeout bounds a single extraction. Zero disables the deadline.
	TaskTimeout time.Duration
	// Tracer records one span per task. Defaults to the global tracer.
	Tracer trace.Tracer
}

// Worker consumes tasks from a queue until it is closed and drained.
type Worker struct {
	queue   analysis.Queue
	clock   analysis.Clock
	emitter progress.Emitter
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	queue analysis.Queue,
	clock analysis.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if clock == nil {
		clock = wallClock{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/JakeFAU/signal-tally/internal/worker")
	}
	return &Worker{
		queue:   queue,
		clock:   clock,
		emitter: emitter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, consuming tasks until the queue is closed and empty or the
// context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, analysis.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		if ctx.Err() != nil {
			// The run drained while this task waited; it was never started.
			return
		}
		w.process(ctx, task)
	}
}

// outcome is what a single extraction produced.
type outcome struct {
	tally *analysis.Tally
	err   error
}

func (w *Worker) process(ctx context.Context, task analysis.Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.clock.Now()
	site := metrics.SanitizeSite(task.URL)
	logger := w.logger.With(
		zap.String("run_id", task.RunID),
		zap.String("mode", string(task.Mode)),
		zap.String("url", task.URL),
	)
	w.emit(task, progress.StageTaskStart, site, 0, 0, "")

	ctx, span := w.cfg.Tracer.Start(ctx, "worker.task", trace.WithAttributes(
		attribute.String("run.id", task.RunID),
		attribute.String("task.url", task.URL),
		attribute.String("task.site", site),
	))
	defer span.End()

	committed, err := w.execute(ctx, task)
	elapsed := w.clock.Now().Sub(start)
	span.SetAttributes(attribute.Int("task.signals", committed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
		logger.Warn("task failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		metrics.ObserveTask(string(task.Mode), "failed", elapsed, 0)
		w.emit(task, progress.StageTaskError, site, 0, elapsed, err.Error())
		return
	}
	logger.Debug("task completed", zap.Duration("elapsed", elapsed), zap.Int("signals", committed))
	metrics.ObserveTask(string(task.Mode), "succeeded", elapsed, committed)
	w.emit(task, progress.StageTaskDone, site, committed, elapsed, "")
}

// execute runs the extractor into a task-local tally and commits it to the
// run table only when extraction finished in time. An extraction that
// outlives its deadline is abandoned and contributes nothing.
func (w *Worker) execute(ctx context.Context, task analysis.Task) (int, error) {
	if task.Extractor == nil {
		return 0, errors.New("task has no extractor")
	}
	if task.Table == nil {
		return 0, errors.New("task has no table")
	}

	taskCtx, cancel := w.taskContext(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		tally := &analysis.Tally{}
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("extractor panic: %v", r)}
			}
		}()
		err := task.Extractor.Extract(taskCtx, task.URL, tally)
		done <- outcome{tally: tally, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-taskCtx.Done():
		select {
		case res = <-done:
		default:
			return 0, fmt.Errorf("task abandoned: %w", taskCtx.Err())
		}
	}
	if res.err != nil {
		return 0, res.err
	}
	if taskCtx.Err() != nil {
		return 0, fmt.Errorf("task deadline: %w", taskCtx.Err())
	}
	return res.tally.CommitTo(task.Table), nil
}

func (w *Worker) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.TaskTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.TaskTimeout)
	}
	return context.WithCancel(ctx)
}

func (w *Worker) emit(task analysis.Task, stage progress.Stage, site string, signals int, dur time.Duration, note string) {
	w.emitter.Emit(progress.Event{
		RunID:   task.RunID,
		TS:      w.clock.Now().UTC(),
		Stage:   stage,
		Mode:    string(task.Mode),
		Site:    site,
		URL:     task.URL,
		Signals: signals,
		Dur:     dur,
		Note:    note,
	})
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
