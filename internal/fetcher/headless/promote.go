package headless

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/metrics"
)

// Detector decides whether a statically fetched page should be rendered.
type Detector interface {
	ShouldPromote(doc analysis.Document) bool
}

// Promoting fetches with a cheap static fetcher and re-fetches through a
// rendering fetcher when the detector says the static page is incomplete.
// A failed promotion falls back to the static document.
type Promoting struct {
	static   analysis.Fetcher
	renderer analysis.Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewPromoting wires a static fetcher, a rendering fetcher and a detector.
// With a nil renderer or detector it behaves exactly like static.
func NewPromoting(static, renderer analysis.Fetcher, detector Detector, logger *zap.Logger) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{static: static, renderer: renderer, detector: detector, logger: logger}
}

// Fetch implements analysis.Fetcher.
func (p *Promoting) Fetch(ctx context.Context, url string) (analysis.Document, error) {
	doc, err := p.static.Fetch(ctx, url)
	if err != nil {
		return analysis.Document{}, fmt.Errorf("static fetch: %w", err)
	}
	if p.renderer == nil || p.detector == nil || !p.detector.ShouldPromote(doc) {
		return doc, nil
	}

	rendered, err := p.renderer.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return analysis.Document{}, fmt.Errorf("headless promotion canceled: %w", ctx.Err())
		}
		metrics.ObserveHeadlessPromotion("failed")
		p.logger.Warn("headless promotion failed", zap.String("url", url), zap.Error(err))
		return doc, nil
	}
	metrics.ObserveHeadlessPromotion("rendered")
	p.logger.Debug("headless promotion applied", zap.String("url", url))
	rendered.UsedHeadless = true
	return rendered, nil
}
