package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/JakeFAU/signal-tally/internal/analysis"
)

// MarkdownWriter outputs a Markdown report with a ranked table and a
// Mermaid pie chart.
type MarkdownWriter struct {
	baseWriter
	limit      int
	chartLimit int
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, limit, chartLimit int) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		limit:      limit,
		chartLimit: chartLimit,
	}
}

// Write outputs the result in Markdown format.
func (w *MarkdownWriter) Write(result analysis.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeRanking(md, result)
	w.writeChart(md, result)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result analysis.Result) {
	md.H1(title(result))
	md.PlainText("")

	status := "Complete"
	if result.Partial {
		status = "Partial"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + result.RunID + "`"},
			{"Mode", string(result.Mode)},
			{"Started", result.StartedAt.UTC().Format("2006-01-02 15:04:05 MST")},
			{"Duration", result.Duration.Round(time.Millisecond).String()},
			{"Distinct Signals", strconv.Itoa(len(result.Entries))},
			{"Status", status},
		},
	})
	md.PlainText("")

	if result.Partial {
		md.Warningf("The drain deadline was reached; counts reflect only the tasks that finished in time.")
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeRanking(md *markdown.Markdown, result analysis.Result) {
	md.H2("Ranking")
	md.PlainText("")

	entries := result.Top(w.limit)
	if len(entries) == 0 {
		md.PlainText("No signals recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{strconv.Itoa(i + 1), tableCell(e.Signal), strconv.Itoa(e.Count)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Signal", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeChart(md *markdown.Markdown, result analysis.Result) {
	entries := result.Top(w.chartLimit)
	if len(entries) == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle(result.Mode.ChartTitle()),
		piechart.WithShowData(true),
	)
	for _, e := range entries {
		chart.LabelAndIntValue(pieLabel(e.Signal), uint64(e.Count))
	}

	md.H2("Distribution")
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

var (
	cellEscaper  = strings.NewReplacer(`\`, `\\`, "|", `\|`)
	labelEscaper = strings.NewReplacer(`"`, "'")
)

// tableCell escapes signal text so it stays inside one table column.
func tableCell(s string) string { return cellEscaper.Replace(s) }

// pieLabel makes signal text safe inside a quoted Mermaid pie label, which
// has no escape for double quotes.
func pieLabel(s string) string { return labelEscaper.Replace(s) }
