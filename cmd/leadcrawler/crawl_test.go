package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/output"
	"github.com/nao1215/leadcrawler/internal/report"
	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

// lockedBuffer is written by the logger and the progress printer from
// several workers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout bytes.Buffer
	var stderr lockedBuffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// linkedSite serves a home page linking to three internal pages.
func linkedSite(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/" {
			fmt.Fprint(w, `<html><body>
				<a href="/about">About</a>
				<a href="/services">Services</a>
				<a href="/contact#form">Contact</a>
				<a href="https://facebook.com/clinic">Facebook</a>
			</body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><a href="/">Home</a></body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// leafSite serves a page without links.
func leafSite(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Call us</p></body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func domainOf(t *testing.T, rawURL string) string {
	t.Helper()

	d, err := urlnorm.DomainKey(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func decodeReport(t *testing.T, stdout string) *model.RunSummary {
	t.Helper()

	var rep report.JSONReport
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, stdout)
	}
	if rep.Summary == nil {
		t.Fatalf("report has no summary: %s", stdout)
	}
	return rep.Summary
}

func TestCrawlCommand(t *testing.T) {
	t.Parallel()

	t.Run("crawls, writes route files and records history", func(t *testing.T) {
		t.Parallel()

		linked, leaf := linkedSite(t), leafSite(t)
		dir := t.TempDir()
		outDir := filepath.Join(dir, "websites")
		dbDir := filepath.Join(dir, "db")
		csvPath := writeFile(t, dir, "leads.csv", strings.Join([]string{
			"Institution Name,Website,Phone",
			"Linked Clinic," + linked.URL + ",555-0100",
			"Leaf Clinic," + leaf.URL + ",555-0101",
			"Nowhere Clinic,n/a,555-0102",
			"Linked Again," + linked.URL + "/about,555-0103",
		}, "\n"))

		stdout, stderr, err := runCLI(t, "crawl",
			"-i", csvPath, "-d", outDir, "--db-dir", dbDir,
			"--crawl-delay", "0s", "--json",
		)
		if err != nil {
			t.Fatalf("crawl failed: %v\n%s", err, stderr)
		}

		summary := decodeReport(t, stdout)
		if summary.Processed != 4 || summary.Failed != 2 {
			t.Errorf("processed=%d failed=%d, want 4 and 2", summary.Processed, summary.Failed)
		}
		if summary.Outcomes[model.OutcomeInvalidInput] != 1 || summary.Outcomes[model.OutcomeDuplicateDomain] != 1 {
			t.Errorf("Outcomes = %v", summary.Outcomes)
		}
		if summary.RunID != 1 {
			t.Errorf("RunID = %d, want 1", summary.RunID)
		}
		if summary.Retry == nil || summary.Retry.Retried != 1 || summary.Retry.Genuine != 1 {
			t.Fatalf("Retry = %+v", summary.Retry)
		}
		if got := summary.Retry.Entries[0].Cause; got != model.CauseNoNavigableLinks {
			t.Errorf("Cause = %s, want %s", got, model.CauseNoNavigableLinks)
		}

		store := output.NewStore(outDir)
		linkedDomain := domainOf(t, linked.URL)
		routes, err := store.Read(linkedDomain)
		if err != nil {
			t.Fatalf("route file of %s: %v", linkedDomain, err)
		}
		want := []string{
			linkedDomain + "/",
			linkedDomain + "/about",
			linkedDomain + "/contact",
			linkedDomain + "/services",
		}
		if strings.Join(routes, " ") != strings.Join(want, " ") {
			t.Errorf("routes = %v, want %v", routes, want)
		}
		if routes, err := store.Read(domainOf(t, leaf.URL)); err != nil || len(routes) != 1 {
			t.Errorf("leaf routes = %v, err = %v", routes, err)
		}

		if !strings.Contains(stderr, "/2] ") {
			t.Errorf("expected progress lines on stderr, got %q", stderr)
		}

		out, _, err := runCLI(t, "history", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(out, "Runs (1)") || !strings.Contains(out, csvPath) {
			t.Errorf("unexpected run list:\n%s", out)
		}

		out, _, err = runCLI(t, "history", leaf.URL, "--db-dir", dbDir, "--json")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		var entries []domainEntry
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			t.Fatalf("history is not JSON: %v\n%s", err, out)
		}
		if len(entries) != 2 || entries[0].Pass != model.PassRetry || entries[1].Pass != model.PassInitial {
			t.Errorf("leaf history = %+v", entries)
		}
	})

	t.Run("without retry pass", func(t *testing.T) {
		t.Parallel()

		leaf := leafSite(t)
		dir := t.TempDir()
		csvPath := writeFile(t, dir, "leads.csv", "Website\n"+leaf.URL+"\n")

		stdout, stderr, err := runCLI(t, "crawl",
			"-i", csvPath, "-d", filepath.Join(dir, "out"), "--no-db",
			"--crawl-delay", "0s", "--retry=false", "--json",
		)
		if err != nil {
			t.Fatalf("crawl failed: %v\n%s", err, stderr)
		}
		summary := decodeReport(t, stdout)
		if summary.Retry != nil {
			t.Errorf("expected no retry summary, got %+v", summary.Retry)
		}
		if summary.SingleRoute != 1 {
			t.Errorf("SingleRoute = %d, want 1", summary.SingleRoute)
		}
	})

	t.Run("markdown report to file", func(t *testing.T) {
		t.Parallel()

		linked := linkedSite(t)
		dir := t.TempDir()
		csvPath := writeFile(t, dir, "leads.csv", "Website\n"+linked.URL+"\n")
		reportPath := filepath.Join(dir, "reports", "run.md")

		stdout, stderr, err := runCLI(t, "crawl",
			"-i", csvPath, "-d", filepath.Join(dir, "out"), "--no-db",
			"--crawl-delay", "0s", "-m", "-o", reportPath,
		)
		if err != nil {
			t.Fatalf("crawl failed: %v\n%s", err, stderr)
		}
		if stdout != "" {
			t.Errorf("expected empty stdout, got %q", stdout)
		}
		data, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("report not written: %v", err)
		}
		if !strings.Contains(string(data), "# LeadCrawler Run Report") {
			t.Errorf("unexpected report:\n%s", data)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		_, _, err := runCLI(t, "crawl", "-i", filepath.Join(dir, "missing.csv"), "-d", dir, "--no-db")
		if err == nil || !strings.Contains(err.Error(), "failed to read input") {
			t.Errorf("expected input error, got %v", err)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Parallel()

		_, _, err := runCLI(t, "crawl", "--workers", "0", "--no-db")
		if err == nil || !strings.Contains(err.Error(), "configuration error") {
			t.Errorf("expected configuration error, got %v", err)
		}
	})

	t.Run("conflicting report formats", func(t *testing.T) {
		t.Parallel()

		_, _, err := runCLI(t, "crawl", "--json", "--markdown", "--no-db")
		if err == nil {
			t.Error("expected error for --json with --markdown")
		}
	})
}
