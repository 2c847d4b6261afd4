package model

import (
	"slices"
	"testing"
	"time"
)

func TestCrawlResultSetRoutes(t *testing.T) {
	t.Parallel()

	t.Run("sorts and removes duplicates", func(t *testing.T) {
		t.Parallel()

		r := &CrawlResult{}
		r.SetRoutes([]string{"example.com/b", "example.com/", "example.com/b", "example.com/a"})

		want := []string{"example.com/", "example.com/a", "example.com/b"}
		if !slices.Equal(r.Routes, want) {
			t.Errorf("got %v, want %v", r.Routes, want)
		}
		if r.RouteCount != 3 {
			t.Errorf("expected RouteCount 3, got %d", r.RouteCount)
		}
		if len(r.Digest) != 64 {
			t.Errorf("expected 64 hex chars digest, got %q", r.Digest)
		}
	})

	t.Run("does not alias the input slice", func(t *testing.T) {
		t.Parallel()

		in := []string{"b", "a"}
		r := &CrawlResult{}
		r.SetRoutes(in)
		if in[0] != "b" {
			t.Error("input slice was modified")
		}
	})

	t.Run("empty routes", func(t *testing.T) {
		t.Parallel()

		r := &CrawlResult{}
		r.SetRoutes(nil)
		if r.Routes == nil || r.RouteCount != 0 || r.Digest != "" {
			t.Errorf("unexpected result for empty routes: %+v", r)
		}
	})
}

func TestRouteDigest(t *testing.T) {
	t.Parallel()

	a := RouteDigest([]string{"example.com/", "example.com/a"})
	b := RouteDigest([]string{"example.com/", "example.com/a"})
	c := RouteDigest([]string{"example.com/"})
	if a != b {
		t.Error("digest is not deterministic")
	}
	if a == c {
		t.Error("different route sets produced the same digest")
	}
}

func TestCrawlResultFailures(t *testing.T) {
	t.Parallel()

	r := &CrawlResult{}
	r.AddFailure("timeout")
	r.AddFailure("timeout")
	r.AddFailure("http-error")
	if r.Failures["timeout"] != 2 || r.TotalFailures() != 3 {
		t.Errorf("unexpected failures: %v", r.Failures)
	}
}

func TestNewRunSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	results := []*CrawlResult{
		{Domain: "a.com", Outcome: OutcomeSuccess, RouteCount: 10},
		{Domain: "b.com", Outcome: OutcomeNoLinksFound, RouteCount: 1},
		{Domain: "c.com", Outcome: OutcomeBlacklisted, RouteCount: 1},
		{Domain: "", SeedURL: "n/a", Outcome: OutcomeInvalidInput},
		nil,
	}

	s := NewRunSummary(results, start, end)

	if s.Processed != 4 || s.Successful != 2 || s.Failed != 2 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.TotalRoutes != 11 || s.AverageRoutes != 5.5 {
		t.Errorf("unexpected routes: total=%d avg=%v", s.TotalRoutes, s.AverageRoutes)
	}
	if s.SingleRoute != 1 {
		t.Errorf("expected 1 single-route domain, got %d", s.SingleRoute)
	}
	if !slices.Equal(s.BlacklistedDomains, []string{"c.com"}) {
		t.Errorf("unexpected blacklist: %v", s.BlacklistedDomains)
	}
	if !slices.Equal(s.FailedDomains, []string{"c.com", "n/a"}) {
		t.Errorf("unexpected failed domains: %v", s.FailedDomains)
	}
	if s.Duration != 90*time.Second {
		t.Errorf("unexpected duration: %v", s.Duration)
	}
}

func TestRetrySummaryAdd(t *testing.T) {
	t.Parallel()

	var s RetrySummary
	s.Add(RetryEntry{Domain: "z.com", Before: 1, After: 25, Overwritten: true})
	s.Add(RetryEntry{Domain: "a.com", Before: 1, After: 1, Cause: CauseServerBlocking})
	s.Sort()

	if s.Retried != 2 || s.Improved != 1 || s.Genuine != 1 || s.AdditionalRoutes != 24 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.Entries[0].Domain != "a.com" {
		t.Errorf("entries not sorted: %+v", s.Entries)
	}
}
