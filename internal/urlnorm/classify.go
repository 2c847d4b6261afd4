package urlnorm

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the category a link falls into relative to the domain being crawled.
type Kind string

const (
	// KindInternal is a same-domain page that should be crawled.
	KindInternal Kind = "internal"
	// KindExternal points to another domain.
	KindExternal Kind = "external"
	// KindFileDownload points to a document, archive or media file.
	KindFileDownload Kind = "file-download"
	// KindSkip is a non-web scheme, an unparsable link or an excluded route.
	KindSkip Kind = "skip"
)

// DefaultDownloadExtensions lists extensions that are never fetched.
func DefaultDownloadExtensions() []string {
	return []string{
		".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
		".zip", ".rar", ".7z", ".tar", ".gz",
		".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".bmp", ".ico",
		".mp3", ".mp4", ".avi", ".mov", ".wmv", ".webm", ".wav",
		".css", ".js", ".xml", ".json", ".txt", ".csv",
		".exe", ".dmg", ".apk", ".iso",
		".woff", ".woff2", ".ttf", ".eot",
	}
}

// DefaultExcludedPatterns lists path globs for login, cart, admin, search
// and feed routes.
func DefaultExcludedPatterns() []string {
	return []string{
		"/login*", "/login/*", "/logout*", "/signin*", "/sign-in*",
		"/signup*", "/register*",
		"/cart*", "/cart/*", "/checkout*", "/checkout/*",
		"/my-account/*", "/account/*",
		"/admin*", "/admin/*", "/wp-admin/*", "/wp-login.php",
		"/search*", "/search/*",
		"/feed", "/feed/*",
	}
}

// DefaultExcludedQueryParams lists query parameters that mark search,
// cart and comment-reply URLs.
func DefaultExcludedQueryParams() []string {
	return []string{"s", "q", "search", "query", "add-to-cart", "replytocom"}
}

// Classification is the result of classifying one link.
type Classification struct {
	// Key is the normalised key; empty for KindSkip.
	Key string
	// URL is the absolute, fragment-free URL to request.
	URL string
	// Kind is the link category.
	Kind Kind
}

// Classifier decides whether a link belongs to a crawl.
// A Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	domain      string
	aliases     map[string]struct{}
	extensions  map[string]struct{}
	patterns    []string
	queryParams map[string]struct{}
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithDownloadExtensions replaces the download extension list.
// Extensions may be given with or without the leading dot.
func WithDownloadExtensions(exts []string) ClassifierOption {
	return func(c *Classifier) {
		c.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			c.extensions[ext] = struct{}{}
		}
	}
}

// WithExcludedPatterns replaces the excluded path globs.
func WithExcludedPatterns(patterns []string) ClassifierOption {
	return func(c *Classifier) {
		c.patterns = append([]string(nil), patterns...)
	}
}

// WithExtraExcludedPatterns appends globs to the excluded path list.
// Used for per-site ignore patterns from the configuration file.
func WithExtraExcludedPatterns(patterns []string) ClassifierOption {
	return func(c *Classifier) {
		c.patterns = append(c.patterns, patterns...)
	}
}

// WithExcludedQueryParams replaces the excluded query parameter list.
func WithExcludedQueryParams(params []string) ClassifierOption {
	return func(c *Classifier) {
		c.queryParams = make(map[string]struct{}, len(params))
		for _, p := range params {
			c.queryParams[strings.ToLower(p)] = struct{}{}
		}
	}
}

// NewClassifier returns a Classifier for the given domain key.
// domain may be a URL or a key; it is reduced with DomainKey.
func NewClassifier(domain string, opts ...ClassifierOption) *Classifier {
	if key, err := DomainKey(domain); err == nil {
		domain = key
	}
	c := &Classifier{
		domain:  domain,
		aliases: map[string]struct{}{},
	}
	WithDownloadExtensions(DefaultDownloadExtensions())(c)
	WithExcludedPatterns(DefaultExcludedPatterns())(c)
	WithExcludedQueryParams(DefaultExcludedQueryParams())(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAlias returns a copy of c that also treats alias as the crawled domain.
// The crawler uses it when the seed redirects to a different host.
func (c *Classifier) WithAlias(alias string) *Classifier {
	key, err := DomainKey(alias)
	if err != nil || key == c.domain {
		return c
	}
	clone := *c
	clone.aliases = make(map[string]struct{}, len(c.aliases)+1)
	for a := range c.aliases {
		clone.aliases[a] = struct{}{}
	}
	clone.aliases[key] = struct{}{}
	return &clone
}

// Domain returns the domain key the classifier was built for.
func (c *Classifier) Domain() string {
	return c.domain
}

// Classify categorises an absolute link.
// Links must be resolved against their page first (see FetchURL).
func (c *Classifier) Classify(link string) Classification {
	abs, err := FetchURL(link, "")
	if err != nil {
		return Classification{Kind: KindSkip}
	}
	u, err := url.Parse(abs)
	if err != nil {
		return Classification{Kind: KindSkip}
	}
	key, err := Normalize(abs)
	if err != nil {
		return Classification{Kind: KindSkip}
	}
	host, err := DomainKey(abs)
	if err != nil {
		return Classification{Kind: KindSkip}
	}

	out := Classification{Key: key, URL: abs}
	if !c.sameDomain(host) {
		out.Kind = KindExternal
		return out
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if _, ok := c.extensions[strings.ToLower(path.Ext(p))]; ok {
		out.Kind = KindFileDownload
		return out
	}
	if c.excluded(p, u.Query()) {
		return Classification{Kind: KindSkip}
	}
	out.Kind = KindInternal
	return out
}

func (c *Classifier) sameDomain(host string) bool {
	if host == c.domain {
		return true
	}
	_, ok := c.aliases[host]
	return ok
}

func (c *Classifier) excluded(p string, query url.Values) bool {
	lower := strings.ToLower(p)
	for _, pattern := range c.patterns {
		if MatchPattern(pattern, lower) {
			return true
		}
	}
	for name := range query {
		if _, ok := c.queryParams[strings.ToLower(name)]; ok {
			return true
		}
	}
	return false
}

// MatchPattern reports whether a URL path matches a glob pattern.
// Besides path.Match syntax it understands "/prefix/*" (anything below
// prefix, and prefix itself) and "*.ext" (any path ending in .ext).
func MatchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(p, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	matched, err := path.Match(pattern, p)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Bare filename globs like "*.pdf" or "print-*" apply to the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(p)); err == nil && ok {
			return true
		}
	}
	return false
}
