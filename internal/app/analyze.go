package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/report"
)

// ResolveURLs returns urls unchanged when any are given and otherwise asks
// the search provider, using the mode's default query when query is empty.
func (a *App) ResolveURLs(ctx context.Context, mode analysis.Mode, urls []string, query string) ([]string, error) {
	if len(urls) > 0 {
		return urls, nil
	}
	found, err := a.search.Search(ctx, mode, query)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", a.search.Name(), err)
	}
	a.logger.Info("search resolved urls",
		zap.String("provider", a.search.Name()),
		zap.String("mode", string(mode)),
		zap.Int("urls", len(found)),
	)
	return found, nil
}

// Analyze resolves the URL list and runs the mode's analysis.
func (a *App) Analyze(ctx context.Context, mode analysis.Mode, urls []string, query string) (analysis.Result, error) {
	resolved, err := a.ResolveURLs(ctx, mode, urls, query)
	if err != nil {
		return analysis.Result{}, err
	}
	return a.scheduler.Run(ctx, mode, resolved)
}

// Render writes result to out in format. When a report directory is
// configured the same bytes are saved as <mode>/<run id><ext>. limit
// overrides the configured entry limit when positive.
func (a *App) Render(ctx context.Context, out io.Writer, result analysis.Result, format report.Format, limit int) error {
	opts := report.Options{Limit: a.cfg.Report.Limit, ChartLimit: a.cfg.Report.ChartLimit}
	if limit > 0 {
		opts.Limit = limit
	}

	w, err := report.New(format, out, opts)
	if err != nil {
		return err
	}
	if a.artifacts == nil {
		if _, err := w.Write(result); err != nil {
			return fmt.Errorf("render %s report: %w", format, err)
		}
		return nil
	}

	var buf bytes.Buffer
	saved, err := report.New(format, &buf, opts)
	if err != nil {
		return err
	}
	if _, err := report.NewMultiWriter(w, saved).Write(result); err != nil {
		return fmt.Errorf("render %s report: %w", format, err)
	}
	name := path.Join(string(result.Mode), result.RunID+format.Extension())
	uri, err := a.artifacts.Save(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	digest, err := a.hasher.Hash(buf.Bytes())
	if err != nil {
		return fmt.Errorf("digest report: %w", err)
	}
	a.logger.Info("report saved", zap.String("uri", uri), zap.String("sha256", digest))
	return nil
}
