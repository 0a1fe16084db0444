package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// TerminalWriter prints a fixed-width listing of the top entries.
type TerminalWriter struct {
	baseWriter
	limit int
}

// NewTerminalWriter creates a TerminalWriter.
func NewTerminalWriter(output io.Writer, limit int) *TerminalWriter {
	return &TerminalWriter{baseWriter: newBaseWriter(output), limit: limit}
}

// Write prints the result title followed by one "signal : count" line per
// entry.
func (w *TerminalWriter) Write(result analysis.Result) (int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n--- %s (Sorted by Frequency) ---\n", title(result))
	if result.Partial {
		b.WriteString("(partial result: drain deadline reached)\n")
	}
	entries := result.Top(w.limit)
	if len(entries) == 0 {
		b.WriteString("No signals recorded.\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "%-50s : %d\n", e.Signal, e.Count)
	}
	return io.WriteString(w.output, b.String())
}

func title(result analysis.Result) string {
	if result.Title != "" {
		return result.Title
	}
	return result.Mode.Title()
}
