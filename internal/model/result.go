package model

import (
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Outcome is the final state of one crawl job.
type Outcome string

const (
	// OutcomeSuccess means at least one route besides the seed was found.
	OutcomeSuccess Outcome = "success"
	// OutcomeNoLinksFound means the seed was fetched but yielded no internal links.
	OutcomeNoLinksFound Outcome = "no-links-found"
	// OutcomeBlacklisted means the domain crossed the failure threshold.
	OutcomeBlacklisted Outcome = "blacklisted-domain"
	// OutcomeFetchFailed means no page of the domain could be fetched.
	OutcomeFetchFailed Outcome = "fetch-failed"
	// OutcomeError means the crawl was interrupted or failed unexpectedly.
	OutcomeError Outcome = "error"
	// OutcomeInvalidInput means the input row had no usable website.
	OutcomeInvalidInput Outcome = "invalid-input"
	// OutcomeDuplicateDomain means another row already claimed the domain.
	OutcomeDuplicateDomain Outcome = "duplicate-domain"
)

// IsFailure reports whether the outcome counts as a failed domain in summaries.
func (o Outcome) IsFailure() bool {
	switch o {
	case OutcomeSuccess, OutcomeNoLinksFound:
		return false
	default:
		return true
	}
}

// Pass identifies which pass produced a result.
type Pass string

const (
	// PassInitial is the first crawl of a domain.
	PassInitial Pass = "initial"
	// PassRetry is the single-route retry crawl.
	PassRetry Pass = "retry"
)

// CrawlResult is the outcome of crawling one domain.
type CrawlResult struct {
	// Domain is the domain key of the job.
	Domain string `json:"domain"`

	// InstitutionID and InstitutionName are copied from the job.
	InstitutionID   string `json:"institution_id,omitempty"`
	InstitutionName string `json:"institution_name,omitempty"`

	// SeedURL is the URL the crawl started from.
	SeedURL string `json:"seed_url"`

	// Pass is the pass that produced this result.
	Pass Pass `json:"pass,omitempty"`

	// Routes are the normalised keys of all discovered pages, sorted.
	// The seed is always included once a crawl has started.
	Routes []string `json:"routes"`

	// RouteCount is len(Routes).
	RouteCount int `json:"route_count"`

	// Outcome is the final state of the job.
	Outcome Outcome `json:"outcome"`

	// ErrorKind is a machine-readable failure kind (timeout, http-error, ...).
	ErrorKind string `json:"error_kind,omitempty"`

	// Error is a human-readable failure description.
	Error string `json:"error,omitempty"`

	// PagesFetched counts successful fetches.
	PagesFetched int `json:"pages_fetched"`

	// Failures counts failed fetches by kind.
	Failures map[string]int `json:"failures,omitempty"`

	// BudgetReached is set when discovery stopped at the page budget.
	BudgetReached bool `json:"budget_reached,omitempty"`

	// ScriptOnly is set when the seed had scripts but no followable anchors,
	// which usually means JavaScript-driven navigation.
	ScriptOnly bool `json:"script_only,omitempty"`

	// Digest is a SHA3-256 hash of the route set, used to detect changes
	// between runs.
	Digest string `json:"digest,omitempty"`

	// OutputFile is the artifact path, empty when nothing was written.
	OutputFile string `json:"output_file,omitempty"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall time of the crawl.
	Duration time.Duration `json:"duration"`
}

// SetRoutes stores a sorted, de-duplicated copy of routes and updates
// RouteCount and Digest.
func (r *CrawlResult) SetRoutes(routes []string) {
	sorted := slices.Clone(routes)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	if sorted == nil {
		sorted = []string{}
	}
	r.Routes = sorted
	r.RouteCount = len(sorted)
	r.Digest = RouteDigest(sorted)
}

// IsSingleRoute reports whether exactly one route was found.
func (r *CrawlResult) IsSingleRoute() bool {
	return r.RouteCount == 1
}

// AddFailure increments the failure counter for kind.
func (r *CrawlResult) AddFailure(kind string) {
	if r.Failures == nil {
		r.Failures = make(map[string]int)
	}
	r.Failures[kind]++
}

// TotalFailures returns the number of failed fetches of all kinds.
func (r *CrawlResult) TotalFailures() int {
	total := 0
	for _, n := range r.Failures {
		total += n
	}
	return total
}

// RouteDigest returns the hex SHA3-256 of the newline-joined routes.
// An empty route set has an empty digest.
func RouteDigest(routes []string) string {
	if len(routes) == 0 {
		return ""
	}
	sum := sha3.Sum256([]byte(strings.Join(routes, "\n")))
	return hex.EncodeToString(sum[:])
}
