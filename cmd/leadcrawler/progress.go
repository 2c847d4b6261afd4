package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/report"
)

// progress prints one line per finished domain. Workers call done
// concurrently.
type progress struct {
	mu       sync.Mutex
	w        io.Writer
	total    int
	finished int
}

func newProgress(w io.Writer, total int) *progress {
	return &progress{w: w, total: total}
}

func (p *progress) done(r *model.CrawlResult, _ int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finished++
	fmt.Fprintf(p.w, "[%d/%d] %s: %s (%d routes)\n",
		p.finished, p.total, r.Domain, report.Label(r.Outcome), r.RouteCount)
}
