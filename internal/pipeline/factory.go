package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/nao1215/leadcrawler/internal/config"
	"github.com/nao1215/leadcrawler/internal/crawler"
	"github.com/nao1215/leadcrawler/internal/fetch"
	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/notify"
	"github.com/nao1215/leadcrawler/internal/tracker"
	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

// PipelineFactory builds the pipeline for one job.
type PipelineFactory func(job model.CrawlJob) (*Pipeline, error)

// Factory builds per-job pipelines from the run configuration.
type Factory struct {
	cfg       *config.Config
	tracker   tracker.Tracker
	store     ArtifactWriter
	recorder  Recorder
	publisher notify.Publisher
	runID     int64
	retry     bool
	logger    *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithStore writes route artifacts through store.
func WithStore(store ArtifactWriter) FactoryOption {
	return func(f *Factory) {
		f.store = store
	}
}

// WithRecorder records results in the history under runID.
func WithRecorder(recorder Recorder, runID int64) FactoryOption {
	return func(f *Factory) {
		f.recorder = recorder
		f.runID = runID
	}
}

// WithPublisher announces written artifacts through publisher.
func WithPublisher(publisher notify.Publisher) FactoryOption {
	return func(f *Factory) {
		f.publisher = publisher
	}
}

// WithFactoryLogger sets the logger handed to every pipeline and spider.
func WithFactoryLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// NewFactory creates a Factory for the first pass.
func NewFactory(cfg *config.Config, t tracker.Tracker, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg:     cfg,
		tracker: t,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForRetry returns a copy of f that builds retry-pass pipelines: larger
// page budget, more seed attempts, tracker t, and artifacts that are only
// overwritten by completed crawls with more than one route.
func (f *Factory) ForRetry(t tracker.Tracker) *Factory {
	clone := *f
	clone.tracker = t
	clone.retry = true
	return &clone
}

// New builds the pipeline for job. It matches PipelineFactory.
func (f *Factory) New(job model.CrawlJob) (*Pipeline, error) {
	site := f.cfg.SiteConfigFor(job.Domain)

	var crawlOpts []CrawlStepOption
	if site.Seed != "" {
		seed, err := urlnorm.SeedURL(site.Seed)
		if err != nil {
			return nil, fmt.Errorf("seed override for %s: %w", job.Domain, err)
		}
		crawlOpts = append(crawlOpts, WithSeedOverride(seed))
	}

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(f.cfg.Timeout),
		fetch.WithDelay(f.cfg.CrawlDelay),
		fetch.WithMaxRedirects(f.cfg.MaxRedirects),
		fetch.WithMaxBodySize(f.cfg.MaxBodySize),
		fetch.WithUserAgent(f.cfg.UserAgent),
	}
	if site.Cookie != "" {
		fetchOpts = append(fetchOpts, fetch.WithCookie(site.Cookie))
	}
	if len(site.Headers) > 0 {
		fetchOpts = append(fetchOpts, fetch.WithHeaders(site.Headers))
	}
	if f.cfg.ProxyAddress != "" {
		fetchOpts = append(fetchOpts, fetch.WithProxy(f.cfg.ProxyAddress))
	}

	client, err := fetch.NewClient(fetchOpts...)
	if err != nil {
		return nil, fmt.Errorf("create http client for %s: %w", job.Domain, err)
	}

	spider := crawler.NewSpider(client, f.tracker, f.spiderOptions(site)...)

	p := New(WithLogger(f.logger), WithContinueOnError(true))
	p.AddCleanup(client.Close)

	p.AddStep(NewCrawlStep(spider, crawlOpts...))

	if f.store != nil {
		writeOpts := []WriteStepOption{WithWriteLogger(f.logger)}
		if f.retry {
			writeOpts = append(writeOpts, WithMinRoutes(2), WithRequireComplete())
		}
		p.AddStep(NewWriteStep(f.store, writeOpts...))
	}
	if f.recorder != nil {
		p.AddStep(NewRecordStep(f.recorder, f.runID, f.logger))
	}
	if f.publisher != nil {
		p.AddStep(NewPublishStep(f.publisher, f.runID, f.logger))
	}
	return p, nil
}

func (f *Factory) spiderOptions(site config.SiteConfig) []crawler.SpiderOption {
	maxPages := f.cfg.MaxPages
	seedAttempts := f.cfg.FailureThreshold
	pass := model.PassInitial
	if f.retry {
		maxPages = f.cfg.RetryMaxPages
		seedAttempts = f.cfg.RetryFailureThreshold
		pass = model.PassRetry
	}
	if site.MaxPages > 0 {
		maxPages = site.MaxPages
		if f.retry {
			maxPages = max(site.MaxPages, f.cfg.RetryMaxPages)
		}
	}

	opts := []crawler.SpiderOption{
		crawler.WithMaxPages(maxPages),
		crawler.WithSeedAttempts(seedAttempts),
		crawler.WithPass(pass),
		crawler.WithLogger(f.logger),
		crawler.WithClassifierOptions(
			urlnorm.WithDownloadExtensions(f.cfg.DownloadExtensions),
			urlnorm.WithExcludedPatterns(f.cfg.ExcludedPatterns),
			urlnorm.WithExtraExcludedPatterns(site.IgnorePatterns),
			urlnorm.WithExcludedQueryParams(f.cfg.ExcludedQueryParams),
		),
	}
	if f.cfg.FailureBackoff > 0 {
		opts = append(opts, crawler.WithFailureBackoff(f.cfg.FailureBackoff, config.DefaultMaxBackoff))
	}
	return opts
}
