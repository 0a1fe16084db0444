package analysis

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxHeadingLength is the longest heading, in characters, that is counted.
const MaxHeadingLength = 100

const headingSelector = "h2, h3, h4, .section-title, .heading"

var (
	numericHeading = regexp.MustCompile(`^[\p{P}\p{S}\p{N}\s\p{Z}]+$`)
	leadingOrdinal = regexp.MustCompile(`^[0-9.\s\p{Z}]+`)
)

// HeadingExtractor counts normalized section headings. Every occurrence
// counts, so a heading repeated on one page is counted repeatedly.
type HeadingExtractor struct {
	source
}

// NewHeadingExtractor builds a HeadingExtractor.
func NewHeadingExtractor(fetcher Fetcher, delay Delayer) *HeadingExtractor {
	return &HeadingExtractor{source: newSource(fetcher, delay)}
}

// Mode implements Extractor.
func (e *HeadingExtractor) Mode() Mode {
	return ModeHeadings
}

// Extract fetches url and increments every valid heading on the page.
func (e *HeadingExtractor) Extract(ctx context.Context, url string, sink Incrementer) error {
	doc, err := e.load(ctx, url)
	if err != nil {
		return err
	}
	for _, h := range Headings(doc) {
		sink.Increment(h)
	}
	return nil
}

// Headings returns the normalized valid headings of doc in document order.
func Headings(doc *goquery.Document) []string {
	var out []string
	doc.Find(headingSelector).Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if !ValidHeading(text) {
			return
		}
		if normalized := NormalizeHeading(text); normalized != "" {
			out = append(out, normalized)
		}
	})
	return out
}

// ValidHeading filters out headings that carry no section meaning.
func ValidHeading(text string) bool {
	text = collapseSpace(text)
	if text == "" || utf8.RuneCountInString(text) > MaxHeadingLength {
		return false
	}
	if numericHeading.MatchString(text) {
		return false
	}
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "copyright") || strings.HasPrefix(lower, "©") {
		return false
	}
	return !strings.Contains(lower, "cookie")
}

// NormalizeHeading strips leading section numbers and folds whitespace.
func NormalizeHeading(text string) string {
	return collapseSpace(leadingOrdinal.ReplaceAllString(text, ""))
}
