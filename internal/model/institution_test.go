package model

import "testing"

func TestBuildJobs(t *testing.T) {
	t.Parallel()

	institutions := []Institution{
		{ID: "1", Name: "Alpha School", Website: "www.alpha.edu"},
		{ID: "2", Name: "No Site", Website: "n/a"},
		{ID: "3", Name: "Empty", Website: "  "},
		{ID: "4", Name: "Alpha Annex", Website: "https://alpha.edu/annex"},
		{ID: "5", Name: "Beta Clinic", Website: "http://beta.org/"},
		{ID: "6", Name: "Bad Scheme", Website: "ftp://files.example.com"},
	}

	jobs, rejected := BuildJobs(institutions)

	t.Run("valid unique domains become jobs", func(t *testing.T) {
		t.Parallel()

		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d: %+v", len(jobs), jobs)
		}
		if jobs[0].Domain != "alpha.edu" || jobs[0].SeedURL != "https://www.alpha.edu" {
			t.Errorf("unexpected first job: %+v", jobs[0])
		}
		if jobs[0].InstitutionID != "1" || jobs[0].InstitutionName != "Alpha School" {
			t.Errorf("institution not carried over: %+v", jobs[0])
		}
		if jobs[1].Domain != "beta.org" || jobs[1].SeedURL != "http://beta.org/" {
			t.Errorf("unexpected second job: %+v", jobs[1])
		}
	})

	t.Run("rejected rows become results", func(t *testing.T) {
		t.Parallel()

		want := map[string]Outcome{
			"2": OutcomeInvalidInput,
			"3": OutcomeInvalidInput,
			"4": OutcomeDuplicateDomain,
			"6": OutcomeInvalidInput,
		}
		if len(rejected) != len(want) {
			t.Fatalf("expected %d rejected rows, got %d", len(want), len(rejected))
		}
		for _, r := range rejected {
			if want[r.InstitutionID] != r.Outcome {
				t.Errorf("row %s: got outcome %q, want %q", r.InstitutionID, r.Outcome, want[r.InstitutionID])
			}
			if r.Outcome == OutcomeDuplicateDomain && r.Domain != "alpha.edu" {
				t.Errorf("duplicate row should carry the domain, got %q", r.Domain)
			}
		}
	})
}

func TestNewCrawlJob(t *testing.T) {
	t.Parallel()

	job, err := NewCrawlJob("example.com:8080/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Domain != "example.com:8080" {
		t.Errorf("got domain %q", job.Domain)
	}
	if job.SeedURL != "https://example.com:8080/start" {
		t.Errorf("got seed %q", job.SeedURL)
	}

	if _, err := NewCrawlJob(""); err == nil {
		t.Error("expected error for empty website")
	}
}
