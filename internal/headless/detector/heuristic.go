// Package detector decides when a fetched page needs a JavaScript-rendering
// re-fetch before signals can be extracted from it.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// Defaults for NewHeuristic.
const (
	DefaultBodyLengthThreshold = 2048
	DefaultMinTextLength       = 200
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	// BodyLengthThreshold is the size under which a script-heavy page is
	// assumed to be an app shell.
	BodyLengthThreshold int
	// MinTextLength is the visible text length under which a page that ships
	// scripts is promoted.
	MinTextLength int
	// Selectors lists content selectors; a page matching none is promoted.
	Selectors []string
}

// NewHeuristic creates a new detector. A zero threshold selects the default.
func NewHeuristic(threshold int, selectors ...string) *Heuristic {
	if threshold == 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{
		BodyLengthThreshold: threshold,
		MinTextLength:       DefaultMinTextLength,
		Selectors:           selectors,
	}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// ShouldPromote decides whether a headless fetch is required. Only successful
// responses are considered; error pages are never re-rendered.
func (h *Heuristic) ShouldPromote(doc analysis.Document) bool {
	if h == nil || doc.StatusCode != http.StatusOK {
		return false
	}
	body := doc.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return h.contentMissing(body)
}

// contentMissing parses the page and reports whether its rendered content is
// too thin: scripts with almost no visible text, or none of the selectors.
func (h *Heuristic) contentMissing(body []byte) bool {
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	hasScripts := parsed.Find("script").Length() > 0
	parsed.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(parsed.Find("body").Text()), " ")
	if hasScripts && len(text) < h.MinTextLength {
		return true
	}
	if len(h.Selectors) == 0 {
		return false
	}
	for _, sel := range h.Selectors {
		if sel != "" && parsed.Find(sel).Length() > 0 {
			return false
		}
	}
	return true
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			// Malformed tag: the rest of the document counts as script.
			coverage += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}
