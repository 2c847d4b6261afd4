// Package log builds the slog loggers used by leadcrawler.
//
// Crawls carry per-site cookies and headers from the configuration file,
// and lead websites sometimes hand out links with session tokens in the
// query string. The RedactingHandler wraps any slog.Handler and masks:
//   - attributes whose key names a credential (cookie, authorization, token)
//   - values that look like credentials (bearer tokens, JWTs, private keys)
//   - credential query parameters inside URL values
//
// Usage:
//
//	logger := log.NewLogger(os.Stderr, verbose, jsonOutput)
//	logger.Debug("fetching page", "url", "https://example.com/?token=abc")
//	// url=https://example.com/?token=***REDACTED***
package log
