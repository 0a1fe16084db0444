package analysis

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Delayer pauses a task before it fetches.
type Delayer interface {
	Wait(ctx context.Context) error
}

// RandomDelay waits a uniformly random duration in [Min, Max).
type RandomDelay struct {
	Min time.Duration
	Max time.Duration
}

// NewRandomDelay builds a RandomDelay, swapping the bounds if needed.
func NewRandomDelay(low, high time.Duration) RandomDelay {
	if high < low {
		low, high = high, low
	}
	return RandomDelay{Min: low, Max: high}
}

// Next picks the next delay.
func (d RandomDelay) Next() time.Duration {
	if d.Max <= d.Min {
		return max(d.Min, 0)
	}
	return d.Min + rand.N(d.Max-d.Min)
}

// Wait sleeps for Next() or until ctx is done.
func (d RandomDelay) Wait(ctx context.Context) error {
	return sleepContext(ctx, d.Next())
}

// NoDelay never waits.
type NoDelay struct{}

// Wait returns ctx.Err() without sleeping.
func (NoDelay) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delay canceled: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return NoDelay{}.Wait(ctx)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("delay canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
