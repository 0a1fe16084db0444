package progress

import (
	"context"
	"fmt"
	"time"
)

// ExampleHub_Emit demonstrates emitting events and flushing via Close.
func ExampleHub_Emit() {
	var signals int
	sink := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageTaskDone {
				signals += evt.Signals
			}
		}
		return nil
	})
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	hub.Emit(Event{RunID: "run-1", TS: time.Unix(0, 0), Stage: StageRunStart})
	hub.Emit(Event{RunID: "run-1", TS: time.Unix(1, 0), Stage: StageTaskDone, URL: "https://example.com", Signals: 3})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("signals committed: %d\n", signals)
	// Output:
	// signals committed: 3
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
