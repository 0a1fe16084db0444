package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/progress"
	"github.com/JakeFAU/signal-tally/internal/queue/memory"
)

func TestWorker_CommitsSuccessfulTask(t *testing.T) {
	t.Parallel()

	table := analysis.NewTable()
	q := memory.NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), analysis.Task{
		RunID:     "run-1",
		URL:       "https://a.example",
		Mode:      analysis.ModeFeatures,
		Extractor: &fakeExtractor{signals: map[string][]string{"https://a.example": {"encryption", "encryption"}}},
		Table:     table,
	}))
	q.Close()

	emitter := &recordingEmitter{}
	w := New(q, nil, emitter, Config{TaskTimeout: time.Second}, zap.NewNop())
	w.Run(context.Background())

	require.Equal(t, map[string]int{"encryption": 2}, table.Snapshot())
	require.Equal(t, []progress.Stage{progress.StageTaskStart, progress.StageTaskDone}, emitter.Stages())
	require.Equal(t, 2, emitter.Events()[1].Signals)
	require.Equal(t, "a.example", emitter.Events()[1].Site)
}

func TestWorker_FailedTaskContributesNothing(t *testing.T) {
	t.Parallel()

	table := analysis.NewTable()
	q := memory.NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), analysis.Task{
		RunID: "run-2",
		URL:   "https://broken.example",
		Mode:  analysis.ModeHeadings,
		Extractor: &fakeExtractor{
			signals: map[string][]string{"https://broken.example": {"Introduction"}},
			err:     errors.New("parse failure"),
		},
		Table: table,
	}))
	q.Close()

	emitter := &recordingEmitter{}
	New(q, nil, emitter, Config{}, nil).Run(context.Background())

	require.Zero(t, table.Len())
	events := emitter.Events()
	require.Len(t, events, 2)
	require.Equal(t, progress.StageTaskError, events[1].Stage)
	require.Contains(t, events[1].Note, "parse failure")
}

func TestWorker_AbandonsTaskPastDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	table := analysis.NewTable()
	q := memory.NewQueue(2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, analysis.Task{
		RunID:     "run-3",
		URL:       "https://hang.example",
		Extractor: &hangingExtractor{release: release},
		Table:     table,
	}))
	require.NoError(t, q.Enqueue(ctx, analysis.Task{
		RunID:     "run-3",
		URL:       "https://ok.example",
		Extractor: &fakeExtractor{signals: map[string][]string{"https://ok.example": {"authentication"}}},
		Table:     table,
	}))
	q.Close()

	start := time.Now()
	New(q, nil, nil, Config{TaskTimeout: 30 * time.Millisecond}, zap.NewNop()).Run(ctx)

	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, map[string]int{"authentication": 1}, table.Snapshot())
}

func TestWorker_RecoversExtractorPanic(t *testing.T) {
	t.Parallel()

	table := analysis.NewTable()
	q := memory.NewQueue(2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, analysis.Task{RunID: "run-4", URL: "https://panic.example", Extractor: panicExtractor{}, Table: table}))
	require.NoError(t, q.Enqueue(ctx, analysis.Task{
		RunID:     "run-4",
		URL:       "https://ok.example",
		Extractor: &fakeExtractor{signals: map[string][]string{"https://ok.example": {"dashboard"}}},
		Table:     table,
	}))
	q.Close()

	New(q, nil, nil, Config{}, zap.NewNop()).Run(ctx)
	require.Equal(t, map[string]int{"dashboard": 1}, table.Snapshot())
}

func TestWorker_SealedTableRejectsLateCommit(t *testing.T) {
	t.Parallel()

	table := analysis.NewTable()
	table.Seal()
	q := memory.NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), analysis.Task{
		RunID:     "run-5",
		URL:       "https://late.example",
		Extractor: &fakeExtractor{signals: map[string][]string{"https://late.example": {"encryption"}}},
		Table:     table,
	}))
	q.Close()

	emitter := &recordingEmitter{}
	New(q, nil, emitter, Config{}, zap.NewNop()).Run(context.Background())
	require.Zero(t, table.Len())
	require.Zero(t, emitter.Events()[1].Signals)
}

func TestWorker_MissingExtractorFailsTask(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), analysis.Task{RunID: "run-6", URL: "https://x.example", Table: analysis.NewTable()}))
	q.Close()

	emitter := &recordingEmitter{}
	New(q, nil, emitter, Config{}, zap.NewNop()).Run(context.Background())
	require.Equal(t, progress.StageTaskError, emitter.Events()[1].Stage)
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(q, nil, nil, Config{}, zap.NewNop()).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

func TestWorker_CanceledRunLeavesQueuedTasksUnstarted(t *testing.T) {
	t.Parallel()

	table := analysis.NewTable()
	q := memory.NewQueue(4)
	extractor := &fakeExtractor{signals: map[string][]string{}}
	for _, url := range []string{"https://a.example", "https://b.example", "https://c.example", "https://d.example"} {
		extractor.signals[url] = []string{"search"}
		require.NoError(t, q.Enqueue(context.Background(), analysis.Task{
			RunID:     "run-7",
			URL:       url,
			Mode:      analysis.ModeFeatures,
			Extractor: extractor,
			Table:     table,
		}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emitter := &recordingEmitter{}
	New(q, nil, emitter, Config{}, zap.NewNop()).Run(ctx)

	require.Empty(t, emitter.Events())
	require.Zero(t, table.Len())
	require.Equal(t, 4, q.Len())
}

type fakeExtractor struct {
	signals map[string][]string
	err     error
}

func (f *fakeExtractor) Mode() analysis.Mode { return analysis.ModeFeatures }

func (f *fakeExtractor) Extract(_ context.Context, url string, sink analysis.Incrementer) error {
	for _, s := range f.signals[url] {
		sink.Increment(s)
	}
	return f.err
}

type hangingExtractor struct {
	release chan struct{}
}

func (h *hangingExtractor) Mode() analysis.Mode { return analysis.ModeFeatures }

func (h *hangingExtractor) Extract(_ context.Context, _ string, sink analysis.Incrementer) error {
	<-h.release
	sink.Increment("late")
	return nil
}

type panicExtractor struct{}

func (panicExtractor) Mode() analysis.Mode { return analysis.ModeHeadings }

func (panicExtractor) Extract(context.Context, string, analysis.Incrementer) error {
	panic("boom")
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	var out []progress.Stage
	for _, e := range r.Events() {
		out = append(out, e.Stage)
	}
	return out
}
