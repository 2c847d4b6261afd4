// Package urlnorm canonicalises URLs into deduplication keys and classifies
// links found on crawled pages.
//
// A key drops the scheme, lower-cases the host, strips the leading "www."
// label and the default port, removes the fragment, collapses duplicate
// slashes and removes the trailing slash of non-root paths. The root path is
// kept as "/", so all of the following map to "example.com/":
//
//	http://www.example.com/
//	https://example.com
//	example.com/
//
// Everything in this package is pure and deterministic; nothing touches the
// network.
package urlnorm
