// Package pipeline runs crawl jobs through a sequence of steps and schedules
// many jobs concurrently.
//
// A Pipeline handles one domain: CrawlStep runs the BFS engine, WriteStep
// stores the route artifact, RecordStep saves the result to the history
// database and PublishStep announces it downstream. The Factory builds a
// fresh pipeline for every job, so per-site overrides from the site file
// (cookie, headers, page budget, seed) apply to that job only.
//
// The BatchProcessor executes jobs with an errgroup bounded by the worker
// count. A failing or panicking job becomes an "error" result; it never
// stops the other jobs.
//
// RetryPass takes the results of a finished pass, re-crawls every domain
// that produced a single route with the retry configuration, and merges
// the improved results back.
package pipeline
