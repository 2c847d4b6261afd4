// Package crawler implements the single-domain crawl engine.
//
// A Spider runs a breadth-first search over the internal links of one domain,
// starting from the job's seed URL. The frontier, visited set and discovered
// set belong to one Crawl call and are never shared between workers; the
// only shared state is the failure tracker.
//
// # Algorithm
//
// The frontier starts with the seed, which is also the first discovered
// route. While the frontier is non-empty, the discovered set is below the
// page budget and the domain is not blacklisted, the spider dequeues a URL
// and fetches it:
//   - a failed fetch is recorded in the tracker; once the domain is
//     blacklisted the loop stops and the partial result is kept
//   - a successful fetch resets the failure counter, and every anchor on
//     the page is resolved, normalised and classified; unseen internal
//     links are enqueued and discovered
//
// External links, file downloads and skipped links are dropped.
//
// # Usage
//
//	client, _ := fetch.NewClient()
//	spider := crawler.NewSpider(client, tracker.NewMemory(3), crawler.WithMaxPages(100))
//	result := spider.Crawl(ctx, job)
package crawler
