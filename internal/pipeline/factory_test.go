package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/nao1215/leadcrawler/internal/config"
	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/output"
	"github.com/nao1215/leadcrawler/internal/tracker"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil)) //nolint:gochecknoglobals // test helper

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.CrawlDelay = 0
	cfg.OutputDir = t.TempDir()
	cfg.DBDir = t.TempDir()
	return cfg
}

// siteServer serves a seed page linking to n internal pages, one external
// site and one PDF.
func siteServer(t *testing.T, n int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path != "/" && r.URL.Path != "/start" {
			fmt.Fprint(w, "<html><body>leaf</body></html>")
			return
		}
		var b strings.Builder
		b.WriteString("<html><body>")
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&b, `<a href="/page-%d">page</a>`, i)
		}
		b.WriteString(`<a href="https://elsewhere.example/">ext</a><a href="/brochure.pdf">pdf</a>`)
		b.WriteString("</body></html>")
		fmt.Fprint(w, b.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustJob(t *testing.T, website string) model.CrawlJob {
	t.Helper()

	job, err := model.NewCrawlJob(website)
	if err != nil {
		t.Fatalf("NewCrawlJob(%q): %v", website, err)
	}
	return job
}

func TestFactoryNew(t *testing.T) {
	t.Parallel()

	t.Run("crawl only without sinks", func(t *testing.T) {
		t.Parallel()

		f := NewFactory(testConfig(t), tracker.NewMemory(3))
		p, err := f.New(testJob)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if names := p.StepNames(); len(names) != 1 || names[0] != "crawl" {
			t.Errorf("StepNames() = %v", names)
		}
	})

	t.Run("all sinks", func(t *testing.T) {
		t.Parallel()

		f := NewFactory(testConfig(t), tracker.NewMemory(3),
			WithStore(newFakeStore()),
			WithRecorder(&fakeRecorder{}, 1),
			WithPublisher(&fakePublisher{}),
			WithFactoryLogger(discardLogger),
		)
		p, err := f.New(testJob)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		want := "crawl,write,record,publish"
		if got := strings.Join(p.StepNames(), ","); got != want {
			t.Errorf("StepNames() = %s, want %s", got, want)
		}
	})

	t.Run("invalid seed override", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		cfg.SiteConfigs = &config.File{Sites: map[string]config.SiteConfig{
			"example.com": {Seed: "ftp://example.com/"},
		}}
		if _, err := NewFactory(cfg, tracker.NewMemory(3)).New(testJob); err == nil {
			t.Error("expected error for unsupported seed scheme")
		}
	})

	t.Run("invalid proxy", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		cfg.ProxyAddress = "not a proxy"
		if _, err := NewFactory(cfg, tracker.NewMemory(3)).New(testJob); err == nil {
			t.Error("expected error for invalid proxy address")
		}
	})
}

func TestFactoryEndToEnd(t *testing.T) {
	t.Parallel()

	t.Run("crawls and writes artifact", func(t *testing.T) {
		t.Parallel()

		srv := siteServer(t, 5)
		cfg := testConfig(t)
		store := output.NewStore(cfg.OutputDir)
		rec := &fakeRecorder{}
		pub := &fakePublisher{}

		f := NewFactory(cfg, tracker.NewMemory(cfg.FailureThreshold),
			WithStore(store),
			WithRecorder(rec, 4),
			WithPublisher(pub),
			WithFactoryLogger(discardLogger),
		)
		job := mustJob(t, srv.URL)

		results := NewBatchProcessor(f.New, WithBatchLogger(discardLogger)).Run(context.Background(), []model.CrawlJob{job})
		r := results[0]

		if r.Outcome != model.OutcomeSuccess || r.RouteCount != 6 {
			t.Fatalf("unexpected result: outcome=%s routes=%v", r.Outcome, r.Routes)
		}
		if r.Pass != model.PassInitial {
			t.Errorf("Pass = %s, want initial", r.Pass)
		}

		data, err := os.ReadFile(store.Path(job.Domain))
		if err != nil {
			t.Fatalf("artifact missing: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 6 || lines[0] != job.Domain+"/" {
			t.Errorf("artifact lines = %v", lines)
		}
		if r.OutputFile != store.Path(job.Domain) {
			t.Errorf("OutputFile = %q, want %q", r.OutputFile, store.Path(job.Domain))
		}
		if len(rec.saved) != 1 || rec.runIDs[0] != 4 {
			t.Errorf("recorded %d results", len(rec.saved))
		}
		if len(pub.events) != 1 || pub.events[0].RouteCount != 6 {
			t.Errorf("published %+v", pub.events)
		}
	})

	t.Run("site overrides apply to the job", func(t *testing.T) {
		t.Parallel()

		cookies := make(chan string, 16)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case cookies <- r.Header.Get("Cookie"):
			default:
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`)
		}))
		t.Cleanup(srv.Close)

		job := mustJob(t, srv.URL)
		cfg := testConfig(t)
		cfg.SiteConfigs = &config.File{Sites: map[string]config.SiteConfig{
			job.Domain: {Cookie: "consent=yes", MaxPages: 2, Seed: srv.URL + "/start"},
		}}

		p, err := NewFactory(cfg, tracker.NewMemory(3), WithFactoryLogger(discardLogger)).New(job)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		r, err := p.Execute(context.Background(), job)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		if r.RouteCount != 2 || !r.BudgetReached {
			t.Errorf("routes = %v, budget reached = %v", r.Routes, r.BudgetReached)
		}
		if r.Routes[1] != job.Domain+"/start" && r.Routes[0] != job.Domain+"/start" {
			t.Errorf("seed override not used: %v", r.Routes)
		}
		if got := <-cookies; got != "consent=yes" {
			t.Errorf("Cookie = %q, want consent=yes", got)
		}
	})

	t.Run("retry factory uses retry budget and pass", func(t *testing.T) {
		t.Parallel()

		srv := siteServer(t, 8)
		cfg := testConfig(t)
		cfg.MaxPages = 1
		cfg.RetryMaxPages = 50
		store := output.NewStore(cfg.OutputDir)

		mainTracker := tracker.NewMemory(cfg.FailureThreshold)
		f := NewFactory(cfg, mainTracker, WithStore(store), WithFactoryLogger(discardLogger))
		job := mustJob(t, srv.URL)

		first := NewBatchProcessor(f.New, WithBatchLogger(discardLogger)).Run(context.Background(), []model.CrawlJob{job})
		if first[0].RouteCount != 1 {
			t.Fatalf("first pass routes = %v, want only the seed", first[0].Routes)
		}

		retryTracker := tracker.NewMemory(cfg.RetryFailureThreshold)
		rp := NewRetryPass(f.ForRetry(retryTracker).New,
			WithResetTrackers(mainTracker, retryTracker),
			WithRetryLogger(discardLogger),
		)
		summary, merged := rp.Run(context.Background(), first)

		if summary.Improved != 1 || merged[0].RouteCount != 9 || merged[0].Pass != model.PassRetry {
			t.Fatalf("summary = %+v, merged = %+v", summary, merged[0])
		}
		routes, err := store.Read(job.Domain)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(routes) != 9 {
			t.Errorf("artifact has %d routes, want 9", len(routes))
		}
	})
}
