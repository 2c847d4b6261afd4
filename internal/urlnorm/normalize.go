package urlnorm

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// idnaProfile converts internationalised host names to their ASCII form.
// StrictDomainName is off because real sites use underscores in host names.
var idnaProfile = idna.New( //nolint:gochecknoglobals // immutable profile
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// Normalize returns the deduplication key for raw.
// The key has no scheme, e.g. "example.com/about?id=1". Leading "www."
// labels are removed.
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, error) {
	u, explicit, err := parse(raw)
	if err != nil {
		return "", err
	}
	host, err := canonicalHost(u, explicit)
	if err != nil {
		return "", err
	}

	key := host + canonicalPath(u)
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key, nil
}

// DomainKey returns the host part of the key for raw ("example.com",
// or "example.com:8080" when a non-default port is present).
func DomainKey(raw string) (string, error) {
	u, explicit, err := parse(raw)
	if err != nil {
		return "", err
	}
	return canonicalHost(u, explicit)
}

// FetchURL resolves link against base and strips the fragment.
// The result is the absolute URL a crawler should request.
// When base is empty, link must already be absolute.
func FetchURL(link, base string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", link, err)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base %q: %w", base, err)
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, ref.Scheme)
	}
	if ref.Host == "" {
		return "", ErrMissingHost
	}
	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String(), nil
}

// SeedURL turns a website value from an input list into an absolute URL.
// Values without a scheme get "https://".
func SeedURL(website string) (string, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return "", ErrEmptyURL
	}
	if !hasAuthorityScheme(website) {
		website = "https://" + strings.TrimPrefix(website, "//")
	}
	u, err := url.Parse(website)
	if err != nil {
		return "", fmt.Errorf("parse website %q: %w", website, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", ErrMissingHost
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// parse accepts absolute URLs as well as scheme-less keys produced by
// Normalize. Scheme-less input is parsed as http; explicit reports whether
// the input carried its own scheme.
func parse(raw string) (u *url.URL, explicit bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, ErrEmptyURL
	}
	if scheme, ok := opaqueScheme(raw); ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	explicit = true
	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "http:" + raw
		explicit = false
	case !hasAuthorityScheme(raw):
		raw = "http://" + raw
		explicit = false
	}

	u, err = url.Parse(raw)
	if err != nil {
		return nil, false, fmt.Errorf("parse %q: %w", raw, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, false, ErrMissingHost
	}
	return u, explicit, nil
}

// canonicalHost builds the host part of a key. Default ports are only
// recognised when the scheme was explicit, since a key has lost its scheme.
func canonicalHost(u *url.URL, explicit bool) (string, error) {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", ErrMissingHost
	}
	if !isASCII(host) {
		if ascii, err := idnaProfile.ToASCII(host); err == nil {
			host = ascii
		}
	}
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	if host == "" {
		return "", ErrMissingHost
	}

	port := u.Port()
	if explicit && ((u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443")) {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		// IPv6 literal without port.
		return "[" + host + "]", nil
	}
	return host, nil
}

func canonicalPath(u *url.URL) string {
	p := u.EscapedPath()
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if p == "" || p == "/" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// opaqueScheme detects "mailto:x", "javascript:x" and similar inputs that
// carry a scheme without "//". A colon followed by a digit is a port.
func opaqueScheme(raw string) (string, bool) {
	if hasAuthorityScheme(raw) {
		return "", false
	}
	i := strings.IndexByte(raw, ':')
	if i <= 0 || i == len(raw)-1 {
		return "", false
	}
	scheme := raw[:i]
	for j, r := range scheme {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if j == 0 && !isAlpha {
			return "", false
		}
		if !isAlpha && (r < '0' || r > '9') && r != '+' && r != '-' && r != '.' {
			return "", false
		}
	}
	if next := raw[i+1]; next >= '0' && next <= '9' {
		return "", false
	}
	return strings.ToLower(scheme), true
}

// hasAuthorityScheme reports whether raw starts with "scheme://". Only the
// text before the first '/', '?' or '#' is considered, so a URL inside a
// query value such as "?to=https://x" does not count.
func hasAuthorityScheme(raw string) bool {
	i := strings.IndexAny(raw, "/?#")
	if i < 2 || raw[i-1] != ':' || !strings.HasPrefix(raw[i:], "//") {
		return false
	}
	for j, r := range raw[:i-1] {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if j == 0 && !isAlpha {
			return false
		}
		if !isAlpha && (r < '0' || r > '9') && r != '+' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := range len(s) {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
