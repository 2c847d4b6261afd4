package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/leadcrawler/internal/fetch"
	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/tracker"
	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

const (
	// DefaultMaxPages is the page budget of one crawl.
	DefaultMaxPages = 100
	// DefaultMaxBackoff caps the failure backoff.
	DefaultMaxBackoff = 10 * time.Second
)

// Fetcher performs one GET request. *fetch.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Spider crawls a single domain breadth-first.
// A Spider holds configuration only and may be reused for several jobs,
// though the pipeline builds one per job so site overrides apply.
type Spider struct {
	fetcher Fetcher
	tracker tracker.Tracker

	// maxPages bounds the discovered set, seed included.
	maxPages int

	// seedAttempts is how often the seed is fetched before giving up,
	// as long as the domain is not blacklisted.
	seedAttempts int

	// backoff is the base of the exponential pause after the second
	// consecutive failure. Zero disables it.
	backoff    time.Duration
	maxBackoff time.Duration

	classifierOpts []urlnorm.ClassifierOption
	pass           model.Pass
	logger         *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages sets the page budget.
func WithMaxPages(n int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = n
	}
}

// WithSeedAttempts sets how many times the seed is tried.
func WithSeedAttempts(n int) SpiderOption {
	return func(s *Spider) {
		s.seedAttempts = n
	}
}

// WithFailureBackoff enables a pause of min(2^n * base, maxBackoff) after the
// n-th consecutive failure, starting with the second.
func WithFailureBackoff(base, maxBackoff time.Duration) SpiderOption {
	return func(s *Spider) {
		s.backoff = base
		s.maxBackoff = maxBackoff
	}
}

// WithClassifierOptions configures the link classifier built for each job.
func WithClassifierOptions(opts ...urlnorm.ClassifierOption) SpiderOption {
	return func(s *Spider) {
		s.classifierOpts = append(s.classifierOpts, opts...)
	}
}

// WithPass labels results with the pass that produced them.
func WithPass(p model.Pass) SpiderOption {
	return func(s *Spider) {
		s.pass = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider returns a Spider that fetches through f and reports failures to t.
func NewSpider(f Fetcher, t tracker.Tracker, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:      f,
		tracker:      t,
		maxPages:     DefaultMaxPages,
		seedAttempts: tracker.DefaultThreshold,
		maxBackoff:   DefaultMaxBackoff,
		pass:         model.PassInitial,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxPages < 1 {
		s.maxPages = 1
	}
	if s.seedAttempts < 1 {
		s.seedAttempts = 1
	}
	return s
}

type frontierItem struct {
	key string
	url string
}

// crawlState is the per-job BFS state. It never leaves Crawl.
type crawlState struct {
	frontier   []frontierItem
	visited    map[string]struct{}
	discovered []string
	classifier *urlnorm.Classifier
}

func (st *crawlState) pop() frontierItem {
	item := st.frontier[0]
	st.frontier = st.frontier[1:]
	return item
}

// Crawl runs the BFS for job and always returns a result; failures are
// expressed through the result's Outcome.
func (s *Spider) Crawl(ctx context.Context, job model.CrawlJob) *model.CrawlResult {
	start := time.Now()
	result := &model.CrawlResult{
		Domain:          job.Domain,
		InstitutionID:   job.InstitutionID,
		InstitutionName: job.InstitutionName,
		SeedURL:         job.SeedURL,
		Pass:            s.pass,
		StartedAt:       start,
	}
	defer func() {
		result.Duration = time.Since(start)
	}()
	logger := s.logger.With("domain", job.Domain, "pass", string(s.pass))

	seedURL, err := urlnorm.FetchURL(job.SeedURL, "")
	if err != nil {
		return s.fail(result, model.OutcomeInvalidInput, string(model.OutcomeInvalidInput), err)
	}
	seedKey, err := urlnorm.Normalize(seedURL)
	if err != nil {
		return s.fail(result, model.OutcomeInvalidInput, string(model.OutcomeInvalidInput), err)
	}

	st := &crawlState{
		frontier:   []frontierItem{{key: seedKey, url: seedURL}},
		visited:    map[string]struct{}{seedKey: {}},
		discovered: []string{seedKey},
		classifier: urlnorm.NewClassifier(job.Domain, s.classifierOpts...),
	}

	blacklisted, err := s.tracker.IsBlacklisted(ctx, job.Domain)
	if err != nil {
		result.SetRoutes(st.discovered)
		return s.fail(result, model.OutcomeError, string(model.OutcomeError), err)
	}
	if blacklisted {
		logger.Debug("domain already blacklisted, skipping")
		result.SetRoutes(st.discovered)
		result.Outcome = model.OutcomeBlacklisted
		result.ErrorKind = string(model.OutcomeBlacklisted)
		result.Error = "domain blacklisted before crawl"
		return result
	}

	var (
		lastErr      error
		stopErr      error
		seedTries    int
		attempts     int
		aliasChecked bool
	)

	// The seed is fetched even when the budget is a single page.
	for len(st.frontier) > 0 && !blacklisted && (len(st.discovered) < s.maxPages || result.PagesFetched == 0) {
		if ctx.Err() != nil {
			stopErr = ctx.Err()
			break
		}
		// A shared tracker can blacklist the domain while this crawl runs.
		if attempts > 0 {
			shared, err := s.tracker.IsBlacklisted(ctx, job.Domain)
			if err != nil {
				stopErr = err
				break
			}
			if shared {
				logger.Info("domain blacklisted elsewhere, stopping")
				blacklisted = true
				break
			}
		}
		attempts++

		item := st.pop()
		isSeed := item.key == seedKey
		if isSeed {
			seedTries++
		}

		resp, err := s.fetcher.Get(ctx, item.url)
		if err != nil {
			if ctx.Err() != nil {
				stopErr = ctx.Err()
				break
			}
			lastErr = err
			kind := fetch.KindOf(err)
			if kind == "" {
				kind = fetch.KindConnection
			}
			result.AddFailure(string(kind))
			logger.Debug("fetch failed", "url", item.url, "kind", string(kind), "error", err)

			status, terr := s.tracker.RecordFailure(ctx, job.Domain)
			if terr != nil {
				stopErr = terr
				break
			}
			if status.Transitioned {
				logger.Info("domain blacklisted", "failures", status.Failures)
			}
			if status.Blacklisted {
				blacklisted = true
				break
			}
			if isSeed && result.PagesFetched == 0 && seedTries < s.seedAttempts {
				st.frontier = append(st.frontier, item)
			}
			if err := s.pause(ctx, status.Failures); err != nil {
				stopErr = err
				break
			}
			continue
		}

		if err := s.tracker.RecordSuccess(ctx, job.Domain); err != nil {
			stopErr = err
			break
		}
		result.PagesFetched++

		if isSeed && !aliasChecked {
			aliasChecked = true
			if host, err := urlnorm.DomainKey(resp.URL); err == nil && host != job.Domain {
				logger.Debug("seed redirected to another host", "host", host)
				st.classifier = st.classifier.WithAlias(resp.URL)
			}
		}

		parsed, err := ParseLinks(resp.Body, resp.URL)
		if err != nil {
			logger.Debug("parse failed", "url", resp.URL, "error", err)
			continue
		}
		if isSeed {
			result.ScriptOnly = parsed.ScriptOnly
		}
		if s.enqueue(st, parsed.Links) {
			result.BudgetReached = true
		}
	}

	if len(st.discovered) >= s.maxPages {
		result.BudgetReached = true
	}
	result.SetRoutes(st.discovered)

	switch {
	case stopErr != nil:
		kind := string(model.OutcomeError)
		if errors.Is(stopErr, context.Canceled) || errors.Is(stopErr, context.DeadlineExceeded) {
			kind = "cancelled"
		}
		return s.fail(result, model.OutcomeError, kind, stopErr)
	case blacklisted:
		result.Outcome = model.OutcomeBlacklisted
		result.ErrorKind = string(model.OutcomeBlacklisted)
		if lastErr != nil {
			result.Error = lastErr.Error()
		}
	case result.PagesFetched == 0:
		result.Outcome = model.OutcomeFetchFailed
		result.ErrorKind = string(fetch.KindOf(lastErr))
		if lastErr != nil {
			result.Error = lastErr.Error()
		}
	case result.RouteCount <= 1:
		result.Outcome = model.OutcomeNoLinksFound
		result.ErrorKind = string(model.OutcomeNoLinksFound)
	default:
		result.Outcome = model.OutcomeSuccess
	}

	logger.Debug("crawl finished",
		"outcome", string(result.Outcome),
		"routes", result.RouteCount,
		"pages_fetched", result.PagesFetched,
		"failures", result.TotalFailures(),
	)
	return result
}

// enqueue adds unseen internal links to the frontier and the discovered set.
// It reports whether the budget cut the page's links short.
func (s *Spider) enqueue(st *crawlState, links []string) bool {
	for _, link := range links {
		c := st.classifier.Classify(link)
		if c.Kind != urlnorm.KindInternal {
			continue
		}
		if _, ok := st.visited[c.Key]; ok {
			continue
		}
		if len(st.discovered) >= s.maxPages {
			return true
		}
		st.visited[c.Key] = struct{}{}
		st.discovered = append(st.discovered, c.Key)
		st.frontier = append(st.frontier, frontierItem{key: c.Key, url: c.URL})
	}
	return false
}

// pause sleeps after consecutive failures when backoff is enabled.
func (s *Spider) pause(ctx context.Context, failures int) error {
	if s.backoff <= 0 || failures < 2 {
		return nil
	}
	d := s.backoff << min(failures, 16)
	if d <= 0 || d > s.maxBackoff {
		d = s.maxBackoff
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Spider) fail(result *model.CrawlResult, outcome model.Outcome, kind string, err error) *model.CrawlResult {
	if result.Routes == nil {
		result.Routes = []string{}
	}
	result.Outcome = outcome
	result.ErrorKind = kind
	result.Error = err.Error()
	return result
}
