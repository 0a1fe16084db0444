// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/queue/memory"
	"github.com/JakeFAU/signal-tally/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := dispatch.Start(ctx)

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherDrainsClosedQueue verifies Run returns once every task is processed.
func TestDispatcherDrainsClosedQueue(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(20)
	table := analysis.NewTable()
	workers := make([]*worker.Worker, 0, 4)
	for i := 0; i < 4; i++ {
		workers = append(workers, worker.New(queue, nil, nil, worker.Config{}, zap.NewNop()))
	}
	dispatch := New(queue, workers)
	require.Equal(t, 4, dispatch.Size())

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, dispatch.Enqueue(ctx, analysis.Task{
			RunID:     "run",
			URL:       fmt.Sprintf("https://site%d.example", i),
			Extractor: constExtractor("signal"),
			Table:     table,
		}))
	}
	queue.Close()

	dispatch.Run(ctx)
	require.Equal(t, map[string]int{"signal": 20}, table.Snapshot())
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	dispatch := New(&errorQueue{err: boom}, nil)

	err := dispatch.Enqueue(context.Background(), analysis.Task{RunID: "run"})
	require.ErrorIs(t, err, boom)
	require.EqualError(t, err, "queue enqueue: boom")
}

type constExtractor string

func (constExtractor) Mode() analysis.Mode { return analysis.ModeFeatures }

func (c constExtractor) Extract(_ context.Context, _ string, sink analysis.Incrementer) error {
	sink.Increment(string(c))
	return nil
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, analysis.Task) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (analysis.Task, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return analysis.Task{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, analysis.Task) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (analysis.Task, error) {
	return analysis.Task{}, analysis.ErrQueueClosed
}
