// Package search turns an analysis mode and a query into the URLs a run
// should visit.
package search

import (
	"context"
	"errors"
	"strings"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// ErrEmptyQuery is returned when neither the caller nor the mode supplies a
// query.
var ErrEmptyQuery = errors.New("empty search query")

// Provider resolves URLs for a mode and query.
type Provider interface {
	Name() string
	Search(ctx context.Context, mode analysis.Mode, query string) ([]string, error)
}

// resolveQuery falls back to the mode's default query.
func resolveQuery(mode analysis.Mode, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = mode.DefaultQuery()
	}
	if query == "" {
		return "", ErrEmptyQuery
	}
	return query, nil
}

// dedupe drops empty and repeated URLs, keeping first-seen order.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
