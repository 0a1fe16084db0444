// Package analysis defines the signal extraction and aggregation core: the
// per-run frequency table, the extractor implementations, and the ranker.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Mode selects which kind of signal a run extracts.
type Mode string

// Supported analysis modes.
const (
	ModeFeatures Mode = "features"
	ModeHeadings Mode = "headings"
)

// ErrUnknownMode is returned when a mode string does not name a supported mode.
var ErrUnknownMode = errors.New("unknown analysis mode")

// Modes lists every supported mode in presentation order.
func Modes() []Mode {
	return []Mode{ModeFeatures, ModeHeadings}
}

// ParseMode converts user input into a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeFeatures, "feature", "crime":
		return ModeFeatures, nil
	case ModeHeadings, "heading", "subheadings":
		return ModeHeadings, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

// Title is the human-readable name of an analysis.
func (m Mode) Title() string {
	switch m {
	case ModeFeatures:
		return "Crime Reporting Features"
	case ModeHeadings:
		return "Deep Learning Paper Subheadings"
	default:
		return string(m)
	}
}

// ChartTitle is the caption used when the ranked table is charted.
func (m Mode) ChartTitle() string {
	switch m {
	case ModeFeatures:
		return "Crime Reporting Features Distribution"
	case ModeHeadings:
		return "Common Subheadings in Deep Learning Papers"
	default:
		return m.Title()
	}
}

// DefaultQuery is the search query used when a run is started without URLs.
func (m Mode) DefaultQuery() string {
	switch m {
	case ModeFeatures:
		return "crime reporting system features"
	case ModeHeadings:
		return "deep learning models journal"
	default:
		return ""
	}
}

// Task binds one URL to the table and extractor of the run that created it.
// A Task is consumed exactly once by exactly one worker.
type Task struct {
	RunID     string
	URL       string
	Mode      Mode
	Extractor Extractor
	Table     *Table
}

// Queue provides enqueue/dequeue semantics for tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// ErrQueueClosed is returned by Dequeue once a closed queue is drained.
var ErrQueueClosed = errors.New("queue closed")

// RankedEntry is one row of a ranked result.
type RankedEntry struct {
	Signal string `json:"signal"`
	Count  int    `json:"count"`
}

// Result is the ranked outcome of a fully drained run.
type Result struct {
	RunID     string        `json:"run_id"`
	Mode      Mode          `json:"mode"`
	Title     string        `json:"title"`
	Entries   []RankedEntry `json:"entries"`
	Partial   bool          `json:"partial"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Top returns at most limit entries from the ranked result.
func (r Result) Top(limit int) []RankedEntry {
	return Top(r.Entries, limit)
}

// Counts returns the ranked entries as a signal→count map.
func (r Result) Counts() map[string]int {
	out := make(map[string]int, len(r.Entries))
	for _, e := range r.Entries {
		out[e.Signal] = e.Count
	}
	return out
}

// Document is the fetched representation of a URL.
type Document struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher retrieves a document for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
}

// Incrementer receives signal contributions.
type Incrementer interface {
	Increment(signal string) bool
}

// Extractor turns the document behind a URL into signal contributions.
// Implementations must be safe for concurrent use by multiple workers.
type Extractor interface {
	Mode() Mode
	Extract(ctx context.Context, url string, sink Incrementer) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
