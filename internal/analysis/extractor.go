package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrFetchFailed wraps every error returned by a Fetcher during extraction.
var ErrFetchFailed = errors.New("fetch failed")

// collapseSpace trims s and folds every whitespace run into one space.
// Unicode spaces such as U+00A0 (&nbsp;) count as whitespace.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// source is shared by both extractors: politeness delay, fetch, parse.
type source struct {
	fetcher Fetcher
	delay   Delayer
}

func newSource(fetcher Fetcher, delay Delayer) source {
	if delay == nil {
		delay = NoDelay{}
	}
	return source{fetcher: fetcher, delay: delay}
}

func (s source) load(ctx context.Context, url string) (*goquery.Document, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrFetchFailed)
	}
	if err := s.delay.Wait(ctx); err != nil {
		return nil, err
	}
	doc, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return parsed, nil
}

// NewExtractor builds the extractor for mode.
func NewExtractor(mode Mode, fetcher Fetcher, delay Delayer, vocabulary []string) (Extractor, error) {
	switch mode {
	case ModeFeatures:
		return NewFeatureExtractor(fetcher, delay, vocabulary)
	case ModeHeadings:
		return NewHeadingExtractor(fetcher, delay), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
