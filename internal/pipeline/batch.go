package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/leadcrawler/internal/model"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 10

// Stats is a snapshot of the batch counters.
type Stats struct {
	Processed   int64
	Succeeded   int64
	SingleRoute int64
	Failed      int64
	Routes      int64
}

// BatchProcessor runs crawl jobs concurrently with a bounded worker count.
// Each job gets its own pipeline from the factory; only the failure tracker
// inside the pipelines is shared between jobs.
type BatchProcessor struct {
	factory     PipelineFactory
	concurrency int
	logger      *slog.Logger

	// callback is invoked from the worker goroutine after each job.
	callback func(result *model.CrawlResult, index int)

	processed   atomic.Int64
	succeeded   atomic.Int64
	singleRoute atomic.Int64
	failed      atomic.Int64
	routes      atomic.Int64
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent jobs.
// Non-positive values keep the default of 10.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithCallback streams every finished result to fn. fn is called from
// worker goroutines and must be safe for concurrent use.
func WithCallback(fn func(result *model.CrawlResult, index int)) BatchOption {
	return func(b *BatchProcessor) {
		b.callback = fn
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory PipelineFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Stats returns the current counters. It is safe to call while Run is
// in progress.
func (bp *BatchProcessor) Stats() Stats {
	return Stats{
		Processed:   bp.processed.Load(),
		Succeeded:   bp.succeeded.Load(),
		SingleRoute: bp.singleRoute.Load(),
		Failed:      bp.failed.Load(),
		Routes:      bp.routes.Load(),
	}
}

// Run executes all jobs and returns one result per job, in job order.
// Failed, panicking and cancelled jobs still produce a result.
func (bp *BatchProcessor) Run(ctx context.Context, jobs []model.CrawlJob) []*model.CrawlResult {
	bp.logger.Info("starting batch processing",
		"total_jobs", len(jobs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	results := make([]*model.CrawlResult, len(jobs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			var result *model.CrawlResult
			select {
			case <-ctx.Done():
				result = errorResult(job, "cancelled", ctx.Err())
			default:
				bp.logger.Debug("crawling domain",
					"domain", job.Domain,
					"index", i+1,
					"total", len(jobs),
				)
				result = bp.runJob(ctx, job)
			}

			mu.Lock()
			results[i] = result
			mu.Unlock()

			bp.record(result)
			if bp.callback != nil {
				bp.callback(result, i)
			}
			// Errors stay in the result so the other jobs keep running.
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	bp.logger.Info("batch processing complete",
		"total_jobs", len(jobs),
		"elapsed", time.Since(startTime),
	)
	return results
}

func (bp *BatchProcessor) runJob(ctx context.Context, job model.CrawlJob) (result *model.CrawlResult) {
	defer func() {
		if r := recover(); r != nil {
			bp.logger.Error("crawl panicked", "domain", job.Domain, "panic", r)
			result = errorResult(job, string(model.OutcomeError), fmt.Errorf("panic: %v", r))
		}
	}()

	p, err := bp.factory(job)
	if err != nil {
		bp.logger.Warn("failed to build pipeline", "domain", job.Domain, "error", err)
		return errorResult(job, string(model.OutcomeError), err)
	}

	result, err = p.Execute(ctx, job)
	if err != nil {
		bp.logger.Warn("crawl failed", "domain", job.Domain, "error", err)
	}
	return result
}

func (bp *BatchProcessor) record(r *model.CrawlResult) {
	bp.processed.Add(1)
	if r.Outcome.IsFailure() {
		bp.failed.Add(1)
		return
	}
	bp.succeeded.Add(1)
	bp.routes.Add(int64(r.RouteCount))
	if r.IsSingleRoute() {
		bp.singleRoute.Add(1)
	}
}

func errorResult(job model.CrawlJob, kind string, err error) *model.CrawlResult {
	if err == nil {
		err = errors.New(kind)
	}
	return &model.CrawlResult{
		Domain:          job.Domain,
		InstitutionID:   job.InstitutionID,
		InstitutionName: job.InstitutionName,
		SeedURL:         job.SeedURL,
		Routes:          []string{},
		Outcome:         model.OutcomeError,
		ErrorKind:       kind,
		Error:           err.Error(),
		StartedAt:       time.Now(),
	}
}
