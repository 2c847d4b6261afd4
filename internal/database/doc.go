// Package database provides SQLite-based run history for leadcrawler.
//
// The CrawlDB stores one row per crawl run and one row per crawled domain
// and pass, so that later runs can be compared with earlier ones:
//   - Run records with aggregate counters and the full summary as JSON
//   - Per-domain results with the route set, its digest, and the outcome
//
// SQLite is used through modernc.org/sqlite, a CGO-free driver, so the
// history is a single file under the XDG data directory and the binary
// stays easy to cross-compile.
package database
