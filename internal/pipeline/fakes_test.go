package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/notify"
)

// crawlFunc adapts a function to the Crawler interface.
type crawlFunc func(ctx context.Context, job model.CrawlJob) *model.CrawlResult

func (f crawlFunc) Crawl(ctx context.Context, job model.CrawlJob) *model.CrawlResult {
	return f(ctx, job)
}

// routesCrawler returns a successful result with the given routes.
func routesCrawler(routes ...string) crawlFunc {
	return func(_ context.Context, job model.CrawlJob) *model.CrawlResult {
		r := &model.CrawlResult{
			Domain:  job.Domain,
			SeedURL: job.SeedURL,
			Outcome: model.OutcomeSuccess,
		}
		r.SetRoutes(routes)
		if r.RouteCount <= 1 {
			r.Outcome = model.OutcomeNoLinksFound
		}
		return r
	}
}

type fakeStore struct {
	mu     sync.Mutex
	files  map[string][]string
	err    error
	writes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string][]string)}
}

func (s *fakeStore) Write(domain string, routes []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.writes++
	s.files[domain] = append([]string(nil), routes...)
	return "out/" + domain + ".txt", nil
}

func (s *fakeStore) get(domain string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.files[domain]
	return r, ok
}

type fakeRecorder struct {
	mu      sync.Mutex
	saved   []*model.CrawlResult
	runIDs  []int64
	digests map[string]string
	saveErr error
}

func (r *fakeRecorder) SaveResult(_ context.Context, runID int64, res *model.CrawlResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, res)
	r.runIDs = append(r.runIDs, runID)
	return nil
}

func (r *fakeRecorder) LatestDigest(_ context.Context, domain string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.digests[domain], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notify.DomainCrawled
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e notify.DomainCrawled) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// stepFunc adapts a function to the Step interface.
type stepFunc struct {
	name string
	fn   func(ctx context.Context, job model.CrawlJob, result *model.CrawlResult) error
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Do(ctx context.Context, job model.CrawlJob, result *model.CrawlResult) error {
	return s.fn(ctx, job, result)
}

var errStep = errors.New("step exploded")
