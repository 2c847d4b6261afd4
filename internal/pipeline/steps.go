package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/notify"
)

// Crawler runs the BFS for one job. *crawler.Spider implements it.
type Crawler interface {
	Crawl(ctx context.Context, job model.CrawlJob) *model.CrawlResult
}

// ArtifactWriter stores the route file of a domain. *output.Store implements it.
type ArtifactWriter interface {
	Write(domain string, routes []string) (string, error)
}

// Recorder stores results in the run history. *database.CrawlDB implements it.
type Recorder interface {
	SaveResult(ctx context.Context, runID int64, r *model.CrawlResult) error
	LatestDigest(ctx context.Context, domain string) (string, error)
}

// CrawlStep crawls the job's domain and fills in the result.
type CrawlStep struct {
	crawler Crawler

	// seed replaces the job's seed URL when set (site file override).
	seed string
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithSeedOverride starts the crawl from seed instead of the job's seed.
func WithSeedOverride(seed string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.seed = seed
	}
}

// NewCrawlStep creates a crawl step around c.
func NewCrawlStep(c Crawler, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{crawler: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, job model.CrawlJob, result *model.CrawlResult) error {
	if s.seed != "" {
		job.SeedURL = s.seed
	}
	*result = *s.crawler.Crawl(ctx, job)
	return nil
}

// WriteStep writes the sorted routes of a result to its artifact.
type WriteStep struct {
	store ArtifactWriter

	// minRoutes is the smallest route count that is written. The retry pass
	// uses 2 so that a single-route retry keeps the first-pass file.
	minRoutes int

	// requireComplete skips results of interrupted or failed crawls.
	requireComplete bool

	logger *slog.Logger
}

// WriteStepOption configures a WriteStep.
type WriteStepOption func(*WriteStep)

// WithMinRoutes sets the smallest route count that is written.
func WithMinRoutes(n int) WriteStepOption {
	return func(s *WriteStep) {
		s.minRoutes = n
	}
}

// WithRequireComplete skips results whose outcome is "error".
func WithRequireComplete() WriteStepOption {
	return func(s *WriteStep) {
		s.requireComplete = true
	}
}

// WithWriteLogger sets a custom logger for the write step.
func WithWriteLogger(logger *slog.Logger) WriteStepOption {
	return func(s *WriteStep) {
		s.logger = logger
	}
}

// NewWriteStep creates a write step that stores artifacts in store.
func NewWriteStep(store ArtifactWriter, opts ...WriteStepOption) *WriteStep {
	s := &WriteStep{
		store:     store,
		minRoutes: 1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *WriteStep) Name() string {
	return "write"
}

// Do executes the write step.
func (s *WriteStep) Do(_ context.Context, _ model.CrawlJob, result *model.CrawlResult) error {
	if result.RouteCount < s.minRoutes {
		return nil
	}
	if s.requireComplete && result.Outcome == model.OutcomeError {
		return nil
	}

	path, err := s.store.Write(result.Domain, result.Routes)
	if err != nil {
		return err
	}
	result.OutputFile = path

	s.logger.Debug("routes written",
		"domain", result.Domain,
		"routes", result.RouteCount,
		"path", path,
	)
	return nil
}

// RecordStep saves the result to the run history. Failures are logged
// and never fail the job.
type RecordStep struct {
	recorder Recorder
	runID    int64
	logger   *slog.Logger
}

// NewRecordStep creates a step that records results under runID.
func NewRecordStep(recorder Recorder, runID int64, logger *slog.Logger) *RecordStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStep{recorder: recorder, runID: runID, logger: logger}
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do executes the record step.
func (s *RecordStep) Do(ctx context.Context, _ model.CrawlJob, result *model.CrawlResult) error {
	if result.Domain == "" {
		return nil
	}

	previous, err := s.recorder.LatestDigest(ctx, result.Domain)
	if err != nil {
		s.logger.Warn("failed to read previous digest", "domain", result.Domain, "error", err)
	} else if previous != "" && result.Digest != "" && previous != result.Digest {
		s.logger.Info("route set changed since last crawl",
			"domain", result.Domain,
			"routes", result.RouteCount,
		)
	}

	if err := s.recorder.SaveResult(ctx, s.runID, result); err != nil {
		s.logger.Warn("failed to record result", "domain", result.Domain, "error", err)
	}
	return nil
}

// PublishStep announces written artifacts downstream. Failures are logged
// and never fail the job.
type PublishStep struct {
	publisher notify.Publisher
	runID     int64
	logger    *slog.Logger
}

// NewPublishStep creates a step that publishes through publisher.
func NewPublishStep(publisher notify.Publisher, runID int64, logger *slog.Logger) *PublishStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishStep{publisher: publisher, runID: runID, logger: logger}
}

// Name returns the step name.
func (s *PublishStep) Name() string {
	return "publish"
}

// Do executes the publish step.
func (s *PublishStep) Do(ctx context.Context, _ model.CrawlJob, result *model.CrawlResult) error {
	if result.OutputFile == "" {
		return nil
	}
	if err := s.publisher.Publish(ctx, notify.NewDomainCrawled(s.runID, result)); err != nil {
		s.logger.Warn("failed to publish result", "domain", result.Domain, "error", err)
	}
	return nil
}
