package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/app"
	"github.com/JakeFAU/signal-tally/internal/config"
	"github.com/JakeFAU/signal-tally/internal/report"
)

// The real application must satisfy the interface the commands use.
var (
	_ App = (*app.App)(nil)
	_ App = (*fakeApp)(nil)
)

type fakeApp struct {
	mu       sync.Mutex
	cfg      config.Config
	modes    []analysis.Mode
	urls     [][]string
	queries  []string
	rendered []report.Format
	limits   []int
	runErr   map[analysis.Mode]error
	partial  bool
	served   bool
	closed   bool
}

func newFakeApp() *fakeApp {
	return &fakeApp{cfg: config.Config{Report: config.ReportConfig{Format: "terminal"}}}
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Config() config.Config { return f.cfg }

func (f *fakeApp) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeApp) Serve(context.Context) error {
	f.served = true
	return nil
}

func (f *fakeApp) Analyze(_ context.Context, mode analysis.Mode, urls []string, query string) (analysis.Result, error) {
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.urls = append(f.urls, urls)
	f.queries = append(f.queries, query)
	err := f.runErr[mode]
	f.mu.Unlock()
	if err != nil && !f.partial {
		return analysis.Result{}, err
	}
	return analysis.Result{
		RunID:   "run-" + string(mode),
		Mode:    mode,
		Title:   mode.Title(),
		Partial: err != nil,
		Entries: []analysis.RankedEntry{{Signal: "signal-" + string(mode), Count: 1}},
	}, err
}

func (f *fakeApp) Render(_ context.Context, out io.Writer, result analysis.Result, format report.Format, limit int) error {
	f.mu.Lock()
	f.rendered = append(f.rendered, format)
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	_, err := fmt.Fprintf(out, "%s:%s\n", result.Mode, result.Entries[0].Signal)
	return err
}

// execute runs the root command against fake. Tests using it must not run
// in parallel because newApp is package state.
func execute(t *testing.T, fake *fakeApp, args ...string) (string, error) {
	t.Helper()
	original := newApp
	newApp = func(context.Context, string) (App, error) { return fake, nil }
	t.Cleanup(func() { newApp = original })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeFeatures(t *testing.T) {
	fake := newFakeApp()
	out, err := execute(t, fake, "analyze", "features", "--url", "https://a.example", "--url", "https://b.example", "--limit", "5")
	require.NoError(t, err)
	require.Equal(t, "features:signal-features\n", out)
	require.Equal(t, []analysis.Mode{analysis.ModeFeatures}, fake.modes)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, fake.urls[0])
	require.Equal(t, []report.Format{report.FormatTerminal}, fake.rendered)
	require.Equal(t, []int{5}, fake.limits)
	require.True(t, fake.closed)
}

func TestAnalyzeHeadingsWithQueryAndFormat(t *testing.T) {
	fake := newFakeApp()
	_, err := execute(t, fake, "analyze", "headings", "--query", "vision transformers", "--format", "md")
	require.NoError(t, err)
	require.Equal(t, []string{"vision transformers"}, fake.queries)
	require.Equal(t, []report.Format{report.FormatMarkdown}, fake.rendered)
}

func TestAnalyzeAllRendersInModeOrder(t *testing.T) {
	fake := newFakeApp()
	out, err := execute(t, fake, "analyze", "all")
	require.NoError(t, err)
	require.Equal(t, "features:signal-features\nheadings:signal-headings\n", out)
	require.ElementsMatch(t, analysis.Modes(), fake.modes)
}

func TestAnalyzeWritesOutFile(t *testing.T) {
	fake := newFakeApp()
	path := filepath.Join(t.TempDir(), "report.txt")
	out, err := execute(t, fake, "analyze", "features", "--out", path)
	require.NoError(t, err)
	require.Empty(t, out)

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "features:signal-features\n", string(data))
}

func TestAnalyzeRejectsUnknownFormat(t *testing.T) {
	fake := newFakeApp()
	_, err := execute(t, fake, "analyze", "features", "--format", "pdf")
	require.ErrorIs(t, err, report.ErrUnknownFormat)
	require.Empty(t, fake.modes)
}

func TestAnalyzeFailure(t *testing.T) {
	fake := newFakeApp()
	fake.runErr = map[analysis.Mode]error{analysis.ModeFeatures: errors.New("search failed")}
	out, err := execute(t, fake, "analyze", "features")
	require.Error(t, err)
	require.Contains(t, err.Error(), "search failed")
	require.Empty(t, out)
}

func TestAnalyzeInterruptedPrintsPartial(t *testing.T) {
	fake := newFakeApp()
	fake.partial = true
	fake.runErr = map[analysis.Mode]error{analysis.ModeHeadings: context.Canceled}
	out, err := execute(t, fake, "analyze", "headings")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "headings:signal-headings\n", out)
}

func TestServe(t *testing.T) {
	fake := newFakeApp()
	_, err := execute(t, fake, "serve")
	require.NoError(t, err)
	require.True(t, fake.served)
	require.True(t, fake.closed)
}

func TestInitFailure(t *testing.T) {
	original := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("bad config") }
	t.Cleanup(func() { newApp = original })

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad config")
}
