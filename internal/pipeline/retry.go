package pipeline

import (
	"context"
	"log/slog"
	"slices"

	"github.com/nao1215/leadcrawler/internal/fetch"
	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/tracker"
)

// RetryPass re-crawls single-route domains with the retry configuration.
type RetryPass struct {
	factory     PipelineFactory
	concurrency int
	logger      *slog.Logger

	// trackers are reset for every retried domain so that a blacklist from
	// the first pass does not block the retry.
	trackers []tracker.Tracker
}

// RetryOption configures a RetryPass.
type RetryOption func(*RetryPass)

// WithRetryConcurrency sets the worker count of the retry pass.
func WithRetryConcurrency(n int) RetryOption {
	return func(r *RetryPass) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRetryLogger sets a custom logger for the retry pass.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *RetryPass) {
		r.logger = logger
	}
}

// WithResetTrackers resets each domain in ts before it is retried.
func WithResetTrackers(ts ...tracker.Tracker) RetryOption {
	return func(r *RetryPass) {
		r.trackers = append(r.trackers, ts...)
	}
}

// NewRetryPass creates a retry pass whose pipelines come from factory,
// normally Factory.ForRetry(...).New.
func NewRetryPass(factory PipelineFactory, opts ...RetryOption) *RetryPass {
	r := &RetryPass{
		factory:     factory,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Candidates returns the indices of results that produced exactly one route.
func Candidates(results []*model.CrawlResult) []int {
	var idx []int
	for i, r := range results {
		if r != nil && r.Domain != "" && r.IsSingleRoute() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Run retries every single-route result and returns the summary and the
// merged result set. A retry result replaces the original only when it
// found more than one route in a completed crawl; otherwise the original
// stays and the domain counts as a genuine single-route case.
func (rp *RetryPass) Run(ctx context.Context, results []*model.CrawlResult) (*model.RetrySummary, []*model.CrawlResult) {
	merged := slices.Clone(results)
	summary := &model.RetrySummary{}

	idx := Candidates(results)
	if len(idx) == 0 {
		return summary, merged
	}

	jobs := make([]model.CrawlJob, len(idx))
	for n, i := range idx {
		r := results[i]
		for _, t := range rp.trackers {
			if err := t.Reset(ctx, r.Domain); err != nil {
				rp.logger.Warn("failed to reset tracker", "domain", r.Domain, "error", err)
			}
		}
		jobs[n] = model.CrawlJob{
			Domain:          r.Domain,
			SeedURL:         r.SeedURL,
			InstitutionID:   r.InstitutionID,
			InstitutionName: r.InstitutionName,
		}
	}

	rp.logger.Info("retrying single-route domains", "count", len(jobs))

	bp := NewBatchProcessor(rp.factory,
		WithConcurrency(rp.concurrency),
		WithBatchLogger(rp.logger),
	)
	retried := bp.Run(ctx, jobs)

	for n, i := range idx {
		orig, rr := results[i], retried[n]
		entry := model.RetryEntry{
			Domain: orig.Domain,
			Before: orig.RouteCount,
			After:  rr.RouteCount,
		}
		if rr.RouteCount > 1 && rr.Outcome != model.OutcomeError {
			entry.Overwritten = true
			merged[i] = rr
			rp.logger.Info("retry found more routes",
				"domain", orig.Domain,
				"before", entry.Before,
				"after", entry.After,
			)
		} else {
			entry.Cause = SingleRouteCause(rr)
		}
		summary.Add(entry)
	}

	summary.Sort()
	return summary, merged
}

// causeByKind maps the dominant failure kind of a retry to its cause.
var causeByKind = []struct {
	kind  fetch.Kind
	cause model.SingleRouteCause
}{
	{fetch.KindHTTP, model.CauseServerBlocking},
	{fetch.KindTimeout, model.CauseUnreachable},
	{fetch.KindConnection, model.CauseUnreachable},
	{fetch.KindDecode, model.CauseUndecodable},
}

// SingleRouteCause explains a retry that still found a single route.
// The most frequent failure kind wins; ties go to the earlier kind in
// causeByKind. Without failures the script hint decides.
func SingleRouteCause(r *model.CrawlResult) model.SingleRouteCause {
	best, bestCount := model.SingleRouteCause(""), 0
	for _, c := range causeByKind {
		if n := r.Failures[string(c.kind)]; n > bestCount {
			best, bestCount = c.cause, n
		}
	}
	if bestCount > 0 {
		return best
	}
	if r.ScriptOnly {
		return model.CauseJavaScriptNavigation
	}
	return model.CauseNoNavigableLinks
}
