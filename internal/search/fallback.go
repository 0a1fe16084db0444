package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// Fallback asks Primary first and uses Secondary when it fails or finds
// nothing. Query errors from Primary are returned as-is.
type Fallback struct {
	Primary   Provider
	Secondary Provider
	Logger    *zap.Logger
}

// Name implements Provider.
func (f *Fallback) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

// Search implements Provider.
func (f *Fallback) Search(ctx context.Context, mode analysis.Mode, query string) ([]string, error) {
	urls, err := f.Primary.Search(ctx, mode, query)
	if err == nil && len(urls) > 0 {
		return urls, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if f.Logger != nil {
		f.Logger.Warn("primary search provider returned nothing, falling back",
			zap.String("primary", f.Primary.Name()),
			zap.String("secondary", f.Secondary.Name()),
			zap.Error(err),
		)
	}
	return f.Secondary.Search(ctx, mode, query)
}
