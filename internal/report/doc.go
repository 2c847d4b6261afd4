// Package report writes run summaries.
//
// Writers for three formats share the Writer interface:
//   - SimpleWriter: plain text for the terminal (default)
//   - JSONWriter: structured output for other tools
//   - MarkdownWriter: a shareable document with tables and a pie chart
//
// The summaries themselves live in the model package; this package only
// renders them.
package report
