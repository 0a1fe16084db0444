package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// ErrHeadlessDisabled is returned by Noop.
var ErrHeadlessDisabled = errors.New("headless fetcher not configured")

// Noop implements analysis.Fetcher but always fails; it stands in when
// headless rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns ErrHeadlessDisabled.
func (Noop) Fetch(context.Context, string) (analysis.Document, error) {
	return analysis.Document{}, ErrHeadlessDisabled
}
