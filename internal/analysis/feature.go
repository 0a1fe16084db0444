package analysis

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultVocabulary lists the distinctive features of crime reporting systems.
var DefaultVocabulary = []string{
	"anonymous reporting",
	"real-time alerts",
	"geolocation tracking",
	"incident mapping",
	"mobile app",
	"digital evidence",
	"encryption",
	"authentication",
	"dashboard analytics",
	"case management",
	"data visualization",
}

// textSelectors are queried in order; their text is concatenated.
var textSelectors = []string{
	"abstract, .abstract, #abstract",
	"article, .article-content, .paper-content",
	"p, section",
	"table, ul, ol",
}

// FeatureExtractor records which vocabulary entries a page mentions. Each
// entry counts at most once per URL.
type FeatureExtractor struct {
	source
	vocabulary []string
	needles    [][]string
}

// NewFeatureExtractor validates the vocabulary and builds the extractor.
// A nil vocabulary selects DefaultVocabulary.
func NewFeatureExtractor(fetcher Fetcher, delay Delayer, vocabulary []string) (*FeatureExtractor, error) {
	if vocabulary == nil {
		vocabulary = DefaultVocabulary
	}
	if len(vocabulary) == 0 {
		return nil, errors.New("feature vocabulary is empty")
	}
	entries := make([]string, 0, len(vocabulary))
	needles := make([][]string, 0, len(vocabulary))
	seen := make(map[string]struct{}, len(vocabulary))
	for _, raw := range vocabulary {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			return nil, errors.New("feature vocabulary contains an empty entry")
		}
		key := strings.ToLower(entry)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, entry)
		needles = append(needles, featureVariants(entry))
	}
	return &FeatureExtractor{
		source:     newSource(fetcher, delay),
		vocabulary: entries,
		needles:    needles,
	}, nil
}

// Mode implements Extractor.
func (e *FeatureExtractor) Mode() Mode {
	return ModeFeatures
}

// Vocabulary returns a copy of the entries the extractor looks for.
func (e *FeatureExtractor) Vocabulary() []string {
	return append([]string(nil), e.vocabulary...)
}

// Extract fetches url and increments every vocabulary entry the page mentions.
func (e *FeatureExtractor) Extract(ctx context.Context, url string, sink Incrementer) error {
	doc, err := e.load(ctx, url)
	if err != nil {
		return err
	}
	e.Match(RelevantText(doc), sink)
	return nil
}

// Match increments each entry found in text, once per entry.
func (e *FeatureExtractor) Match(text string, sink Incrementer) int {
	lower := strings.ToLower(text)
	matched := 0
	for i, entry := range e.vocabulary {
		if containsAny(lower, e.needles[i]) {
			sink.Increment(entry)
			matched++
		}
	}
	return matched
}

// ContainsFeature reports whether text mentions feature literally or with its
// spaces replaced by hyphens or underscores. Other whitespace substitutions
// do not match.
func ContainsFeature(text, feature string) bool {
	return containsAny(strings.ToLower(text), featureVariants(feature))
}

func featureVariants(feature string) []string {
	lower := strings.ToLower(feature)
	return []string{
		lower,
		strings.ReplaceAll(lower, " ", "-"),
		strings.ReplaceAll(lower, " ", "_"),
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// RelevantText concatenates the text of abstracts, article bodies,
// paragraphs, sections, tables and lists.
func RelevantText(doc *goquery.Document) string {
	var b strings.Builder
	for _, sel := range textSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			b.WriteString(collapseSpace(s.Text()))
			b.WriteByte(' ')
		})
	}
	return b.String()
}
