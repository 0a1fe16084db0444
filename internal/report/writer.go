package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// Default truncation limits.
const (
	DefaultLimit      = 20
	DefaultChartLimit = 15
)

// ErrUnknownFormat is returned by ParseFormat for unsupported formats.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names an output format.
type Format string

// Supported formats.
const (
	FormatTerminal Format = "terminal"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat converts user input into a Format.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "terminal", "text":
		return FormatTerminal, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// Extension is the file extension used when a report is saved.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// Writer renders a ranked result.
type Writer interface {
	// Write outputs the result and returns the number of bytes written.
	Write(result analysis.Result) (int, error)
}

// Options tune how many entries each writer renders.
type Options struct {
	// Limit truncates ranked listings. Zero or less keeps everything.
	Limit int
	// ChartLimit truncates the Markdown chart.
	ChartLimit int
}

// DefaultOptions returns the standard truncation limits.
func DefaultOptions() Options {
	return Options{Limit: DefaultLimit, ChartLimit: DefaultChartLimit}
}

// New builds the writer for format.
func New(format Format, output io.Writer, opts Options) (Writer, error) {
	switch format {
	case FormatTerminal:
		return NewTerminalWriter(output, opts.Limit), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output, opts.Limit, opts.ChartLimit), nil
	case FormatJSON:
		return NewJSONWriter(output, WithLimit(opts.Limit), WithPrettyPrint()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers in order and stops at the first
// error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all configured Writers.
func (m *MultiWriter) Write(result analysis.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
