package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/leadcrawler/internal/model"
)

// SimpleWriter outputs a human-readable summary for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists failed domains and every retry entry.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables per-domain detail in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in plain text.
func (w *SimpleWriter) Write(summary *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeTotals(&sb, summary)
	w.writeOutcomes(&sb, summary)
	w.writeBlacklisted(&sb, summary)
	w.writeFailed(&sb, summary)
	w.writeRetry(&sb, summary)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func writeRule(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      LEADCRAWLER RUN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	if summary.RunID > 0 {
		fmt.Fprintf(sb, "Run:            #%d\n", summary.RunID)
	}
	fmt.Fprintf(sb, "Started:        %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Execution Time: %s\n", summary.Duration.Round(time.Millisecond))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTotals(sb *strings.Builder, summary *model.RunSummary) {
	writeRule(sb, "TOTALS")

	fmt.Fprintf(sb, "  Processed:      %d\n", summary.Processed)
	fmt.Fprintf(sb, "  Successful:     %d\n", summary.Successful)
	fmt.Fprintf(sb, "  Failed:         %d\n", summary.Failed)
	fmt.Fprintf(sb, "  Single Route:   %d\n", summary.SingleRoute)
	fmt.Fprintf(sb, "  Total Routes:   %d\n", summary.TotalRoutes)
	fmt.Fprintf(sb, "  Average Routes: %.2f\n", summary.AverageRoutes)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeOutcomes(sb *strings.Builder, summary *model.RunSummary) {
	if len(summary.Outcomes) == 0 {
		return
	}
	writeRule(sb, "OUTCOMES")

	for _, o := range outcomeOrder {
		n := summary.Outcomes[o]
		if n == 0 {
			continue
		}
		fmt.Fprintf(sb, "  %-18s %d\n", Label(o)+":", n)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeBlacklisted(sb *strings.Builder, summary *model.RunSummary) {
	if len(summary.BlacklistedDomains) == 0 {
		return
	}
	writeRule(sb, "BLACKLISTED DOMAINS")

	for _, d := range summary.BlacklistedDomains {
		fmt.Fprintf(sb, "  [x] %s\n", d)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailed(sb *strings.Builder, summary *model.RunSummary) {
	if !w.verbose || len(summary.FailedDomains) == 0 {
		return
	}
	writeRule(sb, "FAILED DOMAINS")

	for _, d := range summary.FailedDomains {
		fmt.Fprintf(sb, "  [-] %s\n", d)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeRetry(sb *strings.Builder, summary *model.RunSummary) {
	retry := summary.Retry
	if retry == nil {
		return
	}
	writeRule(sb, "SINGLE-ROUTE RETRY")

	fmt.Fprintf(sb, "  Retried:           %d\n", retry.Retried)
	fmt.Fprintf(sb, "  Improved:          %d\n", retry.Improved)
	fmt.Fprintf(sb, "  Genuine:           %d\n", retry.Genuine)
	fmt.Fprintf(sb, "  Additional Routes: %d\n", retry.AdditionalRoutes)
	sb.WriteString("\n")

	for _, e := range retry.Entries {
		if e.Overwritten {
			fmt.Fprintf(sb, "  [+] %s: %d -> %d routes\n", e.Domain, e.Before, e.After)
			continue
		}
		if w.verbose {
			fmt.Fprintf(sb, "  [=] %s: %s\n", e.Domain, Label(e.Cause))
		}
	}
	if len(retry.Entries) > 0 {
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by leadcrawler\n")
	sb.WriteString("https://github.com/nao1215/leadcrawler\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
