// Package fetch is the connection manager used by the crawler.
//
// A Client owns a pooled HTTP transport, a cookie jar and one politeness
// limiter per domain. Client.Get waits for the domain's limiter, performs the
// request with a timeout and a redirect limit, caps the body size and decodes
// the body to UTF-8. Every failure is reported as an *Error carrying one of
// the kinds timeout, connection-error, http-error or decode-error, so the
// crawler can count failures without inspecting transport details.
//
// Requests can optionally leave through a SOCKS5 proxy, and per-site cookies
// and headers from the configuration file are injected by a round tripper.
package fetch
