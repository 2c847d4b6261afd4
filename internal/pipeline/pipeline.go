package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/leadcrawler/internal/model"
)

// Step is one stage of a crawl job.
type Step interface {
	// Do executes the step. It receives the job and the result filled in by
	// earlier steps. Non-critical problems should be logged and return nil.
	Do(ctx context.Context, job model.CrawlJob, result *model.CrawlResult) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order for a single job.
type Pipeline struct {
	steps    []Step
	cleanups []func()
	logger   *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to run the remaining steps
// after a step fails. The failure is still recorded in the result.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddCleanup registers fn to run once Execute returns, e.g. to release the
// job's HTTP connections.
func (p *Pipeline) AddCleanup(fn func()) {
	p.cleanups = append(p.cleanups, fn)
}

// Execute runs all steps for job and returns the result they built.
// The result is never nil. The returned error is the first step error when
// continueOnError is false, or the context error on cancellation.
func (p *Pipeline) Execute(ctx context.Context, job model.CrawlJob) (*model.CrawlResult, error) {
	defer func() {
		for i := len(p.cleanups) - 1; i >= 0; i-- {
			p.cleanups[i]()
		}
	}()

	result := &model.CrawlResult{
		Domain:          job.Domain,
		InstitutionID:   job.InstitutionID,
		InstitutionName: job.InstitutionName,
		SeedURL:         job.SeedURL,
		Routes:          []string{},
		StartedAt:       time.Now(),
	}

	var firstErr error
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"domain", job.Domain,
				"reason", ctx.Err(),
			)
			if result.Outcome == "" {
				result.Outcome = model.OutcomeError
				result.ErrorKind = "cancelled"
				result.Error = ctx.Err().Error()
			}
			return result, ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"domain", job.Domain,
		)

		if err := step.Do(ctx, job, result); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"domain", job.Domain,
				"error", err,
			)
			result.Outcome = model.OutcomeError
			result.ErrorKind = step.Name()
			result.Error = fmt.Sprintf("%s: %v", step.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
			if !p.continueOnError {
				return result, err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"domain", job.Domain,
		)
	}

	return result, firstErr
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
