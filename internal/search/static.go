package search

import (
	"context"
	"fmt"

	"github.com/JakeFAU/signal-tally/internal/analysis"
	"github.com/JakeFAU/signal-tally/internal/metrics"
)

// Static returns a fixed list of scholarly search pages per mode. The query
// is accepted for interface parity but does not change the list.
type Static struct {
	lists map[analysis.Mode][]string
}

// DefaultLists are the built-in URL lists.
var DefaultLists = map[analysis.Mode][]string{
	analysis.ModeFeatures: {
		"https://scholar.google.com/scholar?q=crime+reporting+system",
		"https://arxiv.org/search/?query=crime+reporting&searchtype=all",
		"https://www.semanticscholar.org/search?q=crime+reporting+system",
		"https://www.mdpi.com/search?q=crime+reporting",
		"https://link.springer.com/search?query=crime+reporting+system",
		"https://dl.acm.org/search?expanded=crime+reporting+system",
		"https://www.researchgate.net/search/publication?q=crime+reporting",
		"https://www.sciencedirect.com/search?qs=crime%20reporting%20system",
		"https://asistdl.onlinelibrary.wiley.com/action/doSearch?AllField=crime+reporting",
		"https://academic.oup.com/search-results?page=1&q=crime+reporting",
	},
	analysis.ModeHeadings: {
		"https://scholar.google.com/scholar?q=deep+learning+models+journal",
		"https://arxiv.org/search/?query=deep+learning+models&searchtype=all",
		"https://www.semanticscholar.org/search?q=deep+learning+models",
		"https://www.mdpi.com/search?q=deep+learning+models",
		"https://link.springer.com/search?query=deep+learning+models",
		"https://dl.acm.org/search?expanded=deep+learning+models",
		"https://www.researchgate.net/search/publication?q=deep+learning+models",
		"https://www.sciencedirect.com/search?qs=deep%20learning%20models",
		"https://asistdl.onlinelibrary.wiley.com/action/doSearch?AllField=deep+learning+models",
		"https://academic.oup.com/search-results?page=1&q=deep+learning+models",
	},
}

// NewStatic builds a provider over lists; nil selects DefaultLists.
func NewStatic(lists map[analysis.Mode][]string) *Static {
	if lists == nil {
		lists = DefaultLists
	}
	return &Static{lists: lists}
}

// Name implements Provider.
func (*Static) Name() string { return "static" }

// Search implements Provider.
func (s *Static) Search(_ context.Context, mode analysis.Mode, _ string) ([]string, error) {
	urls, ok := s.lists[mode]
	if !ok {
		metrics.ObserveSearch(s.Name(), "error")
		return nil, fmt.Errorf("static search: %w: %q", analysis.ErrUnknownMode, mode)
	}
	metrics.ObserveSearch(s.Name(), "ok")
	return dedupe(urls), nil
}
