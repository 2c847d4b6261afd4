package model

import (
	"slices"
	"time"
)

// SingleRouteCause explains why a domain still has a single route after the
// retry pass.
type SingleRouteCause string

const (
	// CauseNoNavigableLinks means pages were fetched but held no internal links.
	CauseNoNavigableLinks SingleRouteCause = "no-navigable-links"
	// CauseJavaScriptNavigation means the seed relies on scripts for navigation.
	CauseJavaScriptNavigation SingleRouteCause = "javascript-navigation"
	// CauseServerBlocking means the server answered with HTTP errors.
	CauseServerBlocking SingleRouteCause = "server-blocking"
	// CauseUnreachable means requests timed out or could not connect.
	CauseUnreachable SingleRouteCause = "unreachable"
	// CauseUndecodable means responses were binary or not decodable as text.
	CauseUndecodable SingleRouteCause = "undecodable"
)

// RetryEntry records what the retry pass did for one domain.
type RetryEntry struct {
	Domain      string           `json:"domain"`
	Before      int              `json:"before"`
	After       int              `json:"after"`
	Overwritten bool             `json:"overwritten"`
	Cause       SingleRouteCause `json:"cause,omitempty"`
}

// RetrySummary aggregates the single-route retry pass.
type RetrySummary struct {
	// Retried is the number of single-route domains that were crawled again.
	Retried int `json:"retried"`

	// Improved is the number of domains whose artifact was overwritten.
	Improved int `json:"improved"`

	// Genuine is the number of domains that still have a single route.
	Genuine int `json:"genuine"`

	// AdditionalRoutes is the number of routes gained over all improved domains.
	AdditionalRoutes int `json:"additional_routes"`

	// Entries has one element per retried domain, in domain order.
	Entries []RetryEntry `json:"entries,omitempty"`
}

// Add records one retried domain.
func (s *RetrySummary) Add(e RetryEntry) {
	s.Retried++
	if e.Overwritten {
		s.Improved++
		s.AdditionalRoutes += e.After - e.Before
	} else {
		s.Genuine++
	}
	s.Entries = append(s.Entries, e)
}

// Sort orders entries by domain.
func (s *RetrySummary) Sort() {
	slices.SortFunc(s.Entries, func(a, b RetryEntry) int {
		switch {
		case a.Domain < b.Domain:
			return -1
		case a.Domain > b.Domain:
			return 1
		}
		return 0
	})
}

// RunSummary aggregates one crawl run.
type RunSummary struct {
	// RunID identifies the run in the history database.
	RunID int64 `json:"run_id,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	// Processed is the number of results, including rejected input rows.
	Processed int `json:"processed"`

	// Successful counts success and no-links-found outcomes.
	Successful int `json:"successful"`

	// Failed counts every other outcome.
	Failed int `json:"failed"`

	// SingleRoute is the number of successful domains with exactly one route.
	SingleRoute int `json:"single_route"`

	// TotalRoutes is the sum of RouteCount over successful domains.
	TotalRoutes int `json:"total_routes"`

	// AverageRoutes is TotalRoutes / Successful.
	AverageRoutes float64 `json:"average_routes"`

	// Outcomes counts results per outcome.
	Outcomes map[Outcome]int `json:"outcomes"`

	// BlacklistedDomains lists domains that crossed the failure threshold.
	BlacklistedDomains []string `json:"blacklisted_domains,omitempty"`

	// FailedDomains lists domains (or seeds, for rejected rows) that failed.
	FailedDomains []string `json:"failed_domains,omitempty"`

	// Retry is set when the retry pass ran.
	Retry *RetrySummary `json:"retry,omitempty"`
}

// NewRunSummary computes a summary from the final result set.
func NewRunSummary(results []*CrawlResult, startedAt, finishedAt time.Time) *RunSummary {
	s := &RunSummary{
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(startedAt),
		Outcomes:   make(map[Outcome]int),
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		s.Processed++
		s.Outcomes[r.Outcome]++

		if r.Outcome.IsFailure() {
			s.Failed++
			name := r.Domain
			if name == "" {
				name = r.SeedURL
			}
			s.FailedDomains = append(s.FailedDomains, name)
			if r.Outcome == OutcomeBlacklisted {
				s.BlacklistedDomains = append(s.BlacklistedDomains, r.Domain)
			}
			continue
		}

		s.Successful++
		s.TotalRoutes += r.RouteCount
		if r.IsSingleRoute() {
			s.SingleRoute++
		}
	}

	if s.Successful > 0 {
		s.AverageRoutes = float64(s.TotalRoutes) / float64(s.Successful)
	}
	slices.Sort(s.FailedDomains)
	slices.Sort(s.BlacklistedDomains)
	return s
}
