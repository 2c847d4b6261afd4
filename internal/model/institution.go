package model

import (
	"strings"

	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

// Institution is one row of the institution list produced by the discovery
// stage. Only Website is required for crawling; the other fields are carried
// through to results and reports.
type Institution struct {
	// ID identifies the row, usually its 1-based row number in the input.
	ID string `json:"id"`

	// Name is the institution name.
	Name string `json:"name,omitempty"`

	// Type is the institution category (school, clinic, ...).
	Type string `json:"type,omitempty"`

	// Website is the raw website value, with or without scheme.
	Website string `json:"website"`

	// Location is a free-form address.
	Location string `json:"location,omitempty"`

	// Phone is a free-form phone number.
	Phone string `json:"phone,omitempty"`
}

// CrawlJob is the unit of work for one domain.
// Jobs are created once by BuildJobs and never modified.
type CrawlJob struct {
	// Domain is the domain key ("example.com") shared by every route of the job.
	Domain string `json:"domain"`

	// SeedURL is the absolute URL the crawl starts from.
	SeedURL string `json:"seed_url"`

	// InstitutionID refers back to Institution.ID.
	InstitutionID string `json:"institution_id,omitempty"`

	// InstitutionName is copied from the institution for reporting.
	InstitutionName string `json:"institution_name,omitempty"`
}

// NewCrawlJob builds a job from a raw website value.
func NewCrawlJob(website string) (CrawlJob, error) {
	seed, err := urlnorm.SeedURL(website)
	if err != nil {
		return CrawlJob{}, err
	}
	domain, err := urlnorm.DomainKey(seed)
	if err != nil {
		return CrawlJob{}, err
	}
	return CrawlJob{Domain: domain, SeedURL: seed}, nil
}

// BuildJobs turns institutions into crawl jobs.
// Rows without a usable website become invalid-input results and rows whose
// domain was already claimed by an earlier row become duplicate-domain
// results, so every domain is crawled by exactly one worker.
func BuildJobs(institutions []Institution) ([]CrawlJob, []*CrawlResult) {
	jobs := make([]CrawlJob, 0, len(institutions))
	var rejected []*CrawlResult
	seen := make(map[string]string, len(institutions))

	for _, inst := range institutions {
		website := strings.TrimSpace(inst.Website)
		if isMissingWebsite(website) {
			rejected = append(rejected, rejectedResult(inst, "", OutcomeInvalidInput, "no website"))
			continue
		}

		job, err := NewCrawlJob(website)
		if err != nil {
			rejected = append(rejected, rejectedResult(inst, "", OutcomeInvalidInput, err.Error()))
			continue
		}
		job.InstitutionID = inst.ID
		job.InstitutionName = inst.Name

		if owner, ok := seen[job.Domain]; ok {
			r := rejectedResult(inst, job.Domain, OutcomeDuplicateDomain, "domain already claimed by row "+owner)
			r.SeedURL = job.SeedURL
			rejected = append(rejected, r)
			continue
		}
		seen[job.Domain] = inst.ID
		jobs = append(jobs, job)
	}
	return jobs, rejected
}

func isMissingWebsite(website string) bool {
	switch strings.ToLower(website) {
	case "", "n/a", "na", "none", "-":
		return true
	}
	return false
}

func rejectedResult(inst Institution, domain string, outcome Outcome, msg string) *CrawlResult {
	return &CrawlResult{
		Domain:          domain,
		InstitutionID:   inst.ID,
		InstitutionName: inst.Name,
		SeedURL:         inst.Website,
		Outcome:         outcome,
		ErrorKind:       string(outcome),
		Error:           msg,
		Routes:          []string{},
	}
}
