// Package main provides the entry point for the leadcrawler CLI.
//
// leadcrawler reads an institution list produced by the lead discovery
// stage, crawls every institution website within its own domain and writes
// one route file per domain for the extraction stage.
//
// Usage:
//
//	leadcrawler crawl -i 1_discovered_leads.csv -d websites
//	leadcrawler retry websites
//	leadcrawler history example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
