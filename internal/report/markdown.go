package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/leadcrawler/internal/model"
)

// MarkdownWriter outputs summaries as a Markdown document.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeOutcomes(md, summary)
	w.writeBlacklisted(md, summary)
	w.writeRetry(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.RunSummary) {
	md.H1("LeadCrawler Run Report")
	md.PlainText("")

	rows := [][]string{}
	if summary.RunID > 0 {
		rows = append(rows, []string{"Run", "#" + strconv.FormatInt(summary.RunID, 10)})
	}
	rows = append(rows,
		[]string{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Execution Time", summary.Duration.Round(time.Millisecond).String()},
		[]string{"Processed", strconv.Itoa(summary.Processed)},
		[]string{"Successful", strconv.Itoa(summary.Successful)},
		[]string{"Failed", strconv.Itoa(summary.Failed)},
		[]string{"Single Route", strconv.Itoa(summary.SingleRoute)},
		[]string{"Total Routes", strconv.Itoa(summary.TotalRoutes)},
		[]string{"Average Routes", fmt.Sprintf("%.2f", summary.AverageRoutes)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, summary *model.RunSummary) {
	md.H2("Outcomes")
	md.PlainText("")

	if summary.Processed == 0 {
		md.PlainText("No domains were processed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(outcomeOrder))
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Outcome Distribution"),
		piechart.WithShowData(true),
	)
	for _, o := range outcomeOrder {
		n := summary.Outcomes[o]
		if n == 0 {
			continue
		}
		rows = append(rows, []string{Label(o), strconv.Itoa(n)})
		chart.LabelAndIntValue(Label(o), uint64(n))
	}

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")

	switch {
	case len(summary.BlacklistedDomains) > 0:
		md.Warningf("%d domain(s) were blacklisted after repeated failures.", len(summary.BlacklistedDomains))
	case summary.Failed > 0:
		md.Importantf("%d domain(s) could not be crawled.", summary.Failed)
	default:
		md.Tip("Every domain was crawled successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeBlacklisted(md *markdown.Markdown, summary *model.RunSummary) {
	if len(summary.BlacklistedDomains) == 0 {
		return
	}
	md.H2("Blacklisted Domains")
	md.PlainText("")
	md.BulletList(summary.BlacklistedDomains...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeRetry(md *markdown.Markdown, summary *model.RunSummary) {
	retry := summary.Retry
	if retry == nil {
		return
	}
	md.H2("Single-Route Retry")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Retried", "Improved", "Genuine", "Additional Routes"},
		Rows: [][]string{{
			strconv.Itoa(retry.Retried),
			strconv.Itoa(retry.Improved),
			strconv.Itoa(retry.Genuine),
			strconv.Itoa(retry.AdditionalRoutes),
		}},
	})
	md.PlainText("")

	if len(retry.Entries) == 0 {
		return
	}

	rows := make([][]string, len(retry.Entries))
	for i, e := range retry.Entries {
		result := "Genuine: " + Label(e.Cause)
		if e.Overwritten {
			result = "Improved"
		}
		rows[i] = []string{
			"`" + e.Domain + "`",
			strconv.Itoa(e.Before),
			strconv.Itoa(e.After),
			result,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Before", "After", "Result"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [leadcrawler](https://github.com/nao1215/leadcrawler)*")
}
