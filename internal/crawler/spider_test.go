package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nao1215/leadcrawler/internal/fetch"
	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/tracker"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil)) //nolint:gochecknoglobals // test helper

// fakeFetcher serves pages from memory keyed by exact URL.
type fakeFetcher struct {
	mu        sync.Mutex
	pages     map[string]string
	errs      map[string][]error
	redirects map[string]string
	calls     []string
	// onGet runs before each response is served.
	onGet func(rawURL string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:     make(map[string]string),
		errs:      make(map[string][]error),
		redirects: make(map[string]string),
	}
}

func (f *fakeFetcher) Get(ctx context.Context, rawURL string) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.calls = append(f.calls, rawURL)
	if f.onGet != nil {
		f.onGet(rawURL)
	}

	if queue := f.errs[rawURL]; len(queue) > 0 {
		f.errs[rawURL] = queue[1:]
		return nil, queue[0]
	}
	final := rawURL
	if target, ok := f.redirects[rawURL]; ok {
		final = target
	}
	body, ok := f.pages[final]
	if !ok {
		return nil, &fetch.Error{Kind: fetch.KindHTTP, StatusCode: http.StatusNotFound, URL: rawURL}
	}
	return &fetch.Response{StatusCode: http.StatusOK, URL: final, ContentType: "text/html", Body: body}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func htmlPage(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func mustJob(t *testing.T, website string) model.CrawlJob {
	t.Helper()

	job, err := model.NewCrawlJob(website)
	if err != nil {
		t.Fatalf("NewCrawlJob(%q): %v", website, err)
	}
	return job
}

func TestSpiderCrawl(t *testing.T) {
	t.Parallel()

	t.Run("discovers internal pages and drops external and downloads", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			if r.URL.Path == "/" {
				fmt.Fprint(w, htmlPage("/a", "/b", "/c", "/d", "/e", "https://external.example.org/", "/brochure.pdf", "mailto:x@example.com"))
				return
			}
			fmt.Fprint(w, htmlPage("/", "/a"))
		})
		server := httptest.NewServer(mux)
		t.Cleanup(server.Close)

		client, err := fetch.NewClient(fetch.WithDelay(0))
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		t.Cleanup(client.Close)

		job := mustJob(t, server.URL+"/")
		result := NewSpider(client, tracker.NewMemory(3), WithLogger(discardLogger)).Crawl(context.Background(), job)

		if result.Outcome != model.OutcomeSuccess {
			t.Fatalf("expected success, got %q (%s)", result.Outcome, result.Error)
		}
		if result.RouteCount != 6 {
			t.Fatalf("expected 6 routes, got %d: %v", result.RouteCount, result.Routes)
		}
		for _, r := range result.Routes {
			if strings.Contains(r, "external") || strings.HasSuffix(r, ".pdf") {
				t.Errorf("unexpected route %q", r)
			}
		}
		if !slices.IsSorted(result.Routes) {
			t.Errorf("routes are not sorted: %v", result.Routes)
		}
		if result.PagesFetched != 6 {
			t.Errorf("expected 6 pages fetched, got %d", result.PagesFetched)
		}
	})

	t.Run("403 everywhere blacklists the domain", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))
		t.Cleanup(server.Close)

		client, err := fetch.NewClient(fetch.WithDelay(0))
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		t.Cleanup(client.Close)

		tr := tracker.NewMemory(3)
		job := mustJob(t, server.URL)
		result := NewSpider(client, tr, WithLogger(discardLogger)).Crawl(context.Background(), job)

		if result.Outcome != model.OutcomeBlacklisted {
			t.Fatalf("expected blacklisted, got %q", result.Outcome)
		}
		if result.RouteCount != 1 {
			t.Errorf("expected only the seed, got %v", result.Routes)
		}
		if got := requests.Load(); got != 3 {
			t.Errorf("expected 3 requests before blacklisting, got %d", got)
		}
		if result.Failures[string(fetch.KindHTTP)] != 3 {
			t.Errorf("unexpected failures %v", result.Failures)
		}
		if ok, _ := tr.IsBlacklisted(context.Background(), job.Domain); !ok {
			t.Error("tracker should report the domain as blacklisted")
		}
	})

	t.Run("www seed whose pages link to the bare domain", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		var links []string
		for i := range 25 {
			links = append(links, fmt.Sprintf("https://example.com/page-%d", i))
			f.pages[fmt.Sprintf("https://example.com/page-%d", i)] = htmlPage("https://www.example.com/", "https://example.com/page-0/")
		}
		f.pages["https://www.example.com/"] = htmlPage(links...)

		result := NewSpider(f, tracker.NewMemory(3), WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://www.example.com/"))

		if result.Outcome != model.OutcomeSuccess {
			t.Fatalf("expected success, got %q", result.Outcome)
		}
		if result.RouteCount != 26 {
			t.Errorf("expected 26 routes, got %d", result.RouteCount)
		}
		if !slices.Contains(result.Routes, "example.com/") || !slices.Contains(result.Routes, "example.com/page-0") {
			t.Errorf("unexpected routes %v", result.Routes)
		}
		if len(slices.Compact(slices.Clone(result.Routes))) != result.RouteCount {
			t.Error("routes contain duplicates")
		}
	})

	t.Run("budget bounds discovered set", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		for i := range 50 {
			var links []string
			for j := range 10 {
				links = append(links, fmt.Sprintf("https://big.example/p%d", i*10+j+1))
			}
			key := fmt.Sprintf("https://big.example/p%d", i)
			if i == 0 {
				key = "https://big.example/"
			}
			f.pages[key] = htmlPage(links...)
		}

		result := NewSpider(f, tracker.NewMemory(3), WithMaxPages(7), WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://big.example/"))

		if result.RouteCount != 7 {
			t.Errorf("expected 7 routes, got %d", result.RouteCount)
		}
		if !result.BudgetReached {
			t.Error("expected BudgetReached")
		}
	})

	t.Run("budget of one still fetches the seed", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		f.pages["https://tiny.example/"] = htmlPage("/a", "/b")

		result := NewSpider(f, tracker.NewMemory(3), WithMaxPages(1), WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://tiny.example/"))

		if result.PagesFetched != 1 || result.RouteCount != 1 {
			t.Errorf("fetched=%d routes=%v", result.PagesFetched, result.Routes)
		}
		if result.Outcome != model.OutcomeNoLinksFound || !result.BudgetReached {
			t.Errorf("outcome=%s budgetReached=%v", result.Outcome, result.BudgetReached)
		}
	})

	t.Run("genuine single route", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		f.pages["https://lonely.example/"] = `<html><body><p>Call us</p><script src="/app.js"></script></body></html>`

		result := NewSpider(f, tracker.NewMemory(3), WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://lonely.example/"))

		if result.Outcome != model.OutcomeNoLinksFound {
			t.Errorf("expected no-links-found, got %q", result.Outcome)
		}
		if !slices.Equal(result.Routes, []string{"lonely.example/"}) {
			t.Errorf("unexpected routes %v", result.Routes)
		}
		if !result.ScriptOnly {
			t.Error("expected script-only hint")
		}
	})

	t.Run("seed retried after transient failure", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		f.errs["https://flaky.example/"] = []error{&fetch.Error{Kind: fetch.KindTimeout, URL: "https://flaky.example/"}}
		f.pages["https://flaky.example/"] = htmlPage("/about")
		f.pages["https://flaky.example/about"] = htmlPage()

		result := NewSpider(f, tracker.NewMemory(3), WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://flaky.example/"))

		if result.Outcome != model.OutcomeSuccess {
			t.Fatalf("expected success, got %q", result.Outcome)
		}
		if result.Failures[string(fetch.KindTimeout)] != 1 {
			t.Errorf("expected one timeout, got %v", result.Failures)
		}
	})

	t.Run("unreachable seed below threshold is fetch-failed", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		result := NewSpider(f, tracker.NewMemory(5), WithSeedAttempts(2), WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://gone.example/"))

		if result.Outcome != model.OutcomeFetchFailed {
			t.Errorf("expected fetch-failed, got %q", result.Outcome)
		}
		if result.ErrorKind != string(fetch.KindHTTP) {
			t.Errorf("expected http-error kind, got %q", result.ErrorKind)
		}
		if got := f.callCount(); got != 2 {
			t.Errorf("expected 2 seed attempts, got %d", got)
		}
	})

	t.Run("failures below threshold keep partial results", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		f.pages["https://partial.example/"] = htmlPage("/ok", "/missing")
		f.pages["https://partial.example/ok"] = htmlPage()

		result := NewSpider(f, tracker.NewMemory(3), WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://partial.example/"))

		if result.Outcome != model.OutcomeSuccess || result.RouteCount != 3 {
			t.Errorf("got outcome %q with %d routes", result.Outcome, result.RouteCount)
		}
	})

	t.Run("already blacklisted domain is not fetched", func(t *testing.T) {
		t.Parallel()

		tr := tracker.NewMemory(1)
		_, _ = tr.RecordFailure(context.Background(), "blocked.example")
		f := newFakeFetcher()

		result := NewSpider(f, tr, WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://blocked.example/"))

		if result.Outcome != model.OutcomeBlacklisted {
			t.Errorf("expected blacklisted, got %q", result.Outcome)
		}
		if f.callCount() != 0 {
			t.Errorf("expected no requests, got %d", f.callCount())
		}
		if result.RouteCount != 1 {
			t.Errorf("expected seed route, got %v", result.Routes)
		}
	})

	t.Run("blacklisting by another writer stops the crawl", func(t *testing.T) {
		t.Parallel()

		tr := tracker.NewMemory(2)
		f := newFakeFetcher()
		f.pages["https://shared.example/"] = htmlPage("/a", "/b", "/c", "/d", "/e", "/f", "/g", "/h")
		for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
			f.pages["https://shared.example/"+p] = htmlPage()
		}
		f.onGet = func(rawURL string) {
			if rawURL != "https://shared.example/" {
				return
			}
			for range 2 {
				_, _ = tr.RecordFailure(context.Background(), "shared.example")
			}
		}

		result := NewSpider(f, tr, WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://shared.example/"))

		if result.Outcome != model.OutcomeBlacklisted {
			t.Errorf("expected blacklisted, got %q", result.Outcome)
		}
		if f.callCount() != 1 {
			t.Errorf("expected only the seed request, got %d", f.callCount())
		}
	})

	t.Run("seed redirect host becomes alias", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		f.redirects["https://old.example/"] = "https://new.example/"
		f.pages["https://new.example/"] = htmlPage("/team", "https://new.example/contact")
		f.pages["https://new.example/team"] = htmlPage()
		f.pages["https://new.example/contact"] = htmlPage()

		result := NewSpider(f, tracker.NewMemory(3), WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://old.example/"))

		want := []string{"new.example/contact", "new.example/team", "old.example/"}
		if !slices.Equal(result.Routes, want) {
			t.Errorf("got %v, want %v", result.Routes, want)
		}
	})

	t.Run("cancelled context yields error with partial routes", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := NewSpider(newFakeFetcher(), tracker.NewMemory(3), WithLogger(discardLogger)).
			Crawl(ctx, mustJob(t, "https://slow.example/"))

		if result.Outcome != model.OutcomeError {
			t.Errorf("expected error outcome, got %q", result.Outcome)
		}
		if result.ErrorKind != "cancelled" {
			t.Errorf("expected cancelled kind, got %q", result.ErrorKind)
		}
	})

	t.Run("tracker error ends crawl", func(t *testing.T) {
		t.Parallel()

		result := NewSpider(newFakeFetcher(), errTracker{}, WithLogger(discardLogger)).
			Crawl(context.Background(), mustJob(t, "https://x.example/"))

		if result.Outcome != model.OutcomeError {
			t.Errorf("expected error outcome, got %q", result.Outcome)
		}
	})
}

type errTracker struct{}

var errTrackerDown = errors.New("tracker down")

func (errTracker) RecordFailure(context.Context, string) (tracker.Status, error) {
	return tracker.Status{}, errTrackerDown
}
func (errTracker) RecordSuccess(context.Context, string) error        { return errTrackerDown }
func (errTracker) IsBlacklisted(context.Context, string) (bool, error) { return false, errTrackerDown }
func (errTracker) Reset(context.Context, string) error                { return errTrackerDown }
func (errTracker) Blacklisted(context.Context) ([]string, error)      { return nil, errTrackerDown }

func TestSpiderBackoff(t *testing.T) {
	t.Parallel()

	s := NewSpider(newFakeFetcher(), tracker.NewMemory(3), WithFailureBackoff(0, 0))
	if err := s.pause(context.Background(), 5); err != nil {
		t.Errorf("disabled backoff should not fail: %v", err)
	}

	s = NewSpider(newFakeFetcher(), tracker.NewMemory(3), WithFailureBackoff(1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.pause(ctx, 1); err != nil {
		t.Errorf("first failure should not pause: %v", err)
	}
	if err := s.pause(ctx, 2); !errors.Is(err, context.Canceled) && err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
