package report

import (
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/leadcrawler/internal/model"
)

// Writer renders a run summary to its destination.
type Writer interface {
	// Write outputs the summary and returns the number of bytes written.
	Write(summary *model.RunSummary) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to every writer and stops at the first error.
func (m *MultiWriter) Write(summary *model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// outcomeOrder is the display order of outcomes in every format.
var outcomeOrder = []model.Outcome{
	model.OutcomeSuccess,
	model.OutcomeNoLinksFound,
	model.OutcomeBlacklisted,
	model.OutcomeFetchFailed,
	model.OutcomeError,
	model.OutcomeInvalidInput,
	model.OutcomeDuplicateDomain,
}

var titleCaser = cases.Title(language.English)

// Label turns a kebab-case identifier such as "no-links-found" into
// "No Links Found".
func Label[T ~string](v T) string {
	if v == "" {
		return "-"
	}
	return titleCaser.String(strings.ReplaceAll(string(v), "-", " "))
}
