package report

import (
	"encoding/json"
	"io"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// JSONWriter outputs results for tool integration.
type JSONWriter struct {
	baseWriter
	limit        int
	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = ""
		w.indentString = "  "
	}
}

// WithLimit truncates the entries written. Zero or less keeps all of them.
func WithLimit(limit int) JSONWriterOption {
	return func(w *JSONWriter) { w.limit = limit }
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Document is the JSON shape of a rendered result.
type Document struct {
	RunID      string                 `json:"run_id"`
	Mode       analysis.Mode          `json:"mode"`
	Title      string                 `json:"title"`
	Partial    bool                   `json:"partial"`
	StartedAt  string                 `json:"started_at"`
	DurationMS int64                  `json:"duration_ms"`
	Total      int                    `json:"total_signals"`
	Entries    []analysis.RankedEntry `json:"entries"`
}

// NewDocument converts result into its JSON shape, keeping at most limit
// entries.
func NewDocument(result analysis.Result, limit int) Document {
	entries := result.Top(limit)
	if entries == nil {
		entries = []analysis.RankedEntry{}
	}
	return Document{
		RunID:      result.RunID,
		Mode:       result.Mode,
		Title:      title(result),
		Partial:    result.Partial,
		StartedAt:  result.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		DurationMS: result.Duration.Milliseconds(),
		Total:      len(result.Entries),
		Entries:    entries,
	}
}

// Write outputs the result as a single JSON document followed by a newline.
func (w *JSONWriter) Write(result analysis.Result) (int, error) {
	doc := NewDocument(result, w.limit)

	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
