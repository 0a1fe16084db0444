// Package memory provides the bounded in-memory task queue used by a run.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan analysis.Task
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan analysis.Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
// Enqueueing onto a closed queue fails with analysis.ErrQueueClosed.
func (q *Queue) Enqueue(ctx context.Context, task analysis.Task) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return fmt.Errorf("enqueue: %w", analysis.ErrQueueClosed)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. Once the queue
// is closed and drained it returns analysis.ErrQueueClosed. A finished context
// wins over buffered tasks.
func (q *Queue) Dequeue(ctx context.Context) (analysis.Task, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Task{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return analysis.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return analysis.Task{}, analysis.ErrQueueClosed
		}
		return task, nil
	}
}

// Len reports how many tasks are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting tasks; queued tasks remain available to Dequeue.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
