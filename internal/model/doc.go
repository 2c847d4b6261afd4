// Package model defines the data structures shared by the crawler, the
// pipeline, the history database and the report writers.
//
// The main types are:
//   - Institution: one row of the input list
//   - CrawlJob: an immutable unit of work for a single domain
//   - CrawlResult: the outcome of crawling one domain
//   - RunSummary and RetrySummary: aggregate statistics for a run
//
// All types serialise to JSON; the JSON report and the Kafka events use
// these shapes directly.
package model
