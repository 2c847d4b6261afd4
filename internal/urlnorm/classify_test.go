package urlnorm

import "testing"

func TestClassifierClassify(t *testing.T) {
	t.Parallel()

	c := NewClassifier("https://www.example.com/")

	tests := []struct {
		name    string
		link    string
		want    Kind
		wantKey string
	}{
		{name: "internal page", link: "https://example.com/about", want: KindInternal, wantKey: "example.com/about"},
		{name: "www variant is internal", link: "http://www.example.com/about/", want: KindInternal, wantKey: "example.com/about"},
		{name: "external domain", link: "https://other.org/", want: KindExternal, wantKey: "other.org/"},
		{name: "subdomain is external", link: "https://blog.example.com/", want: KindExternal, wantKey: "blog.example.com/"},
		{name: "pdf download", link: "https://example.com/files/report.PDF", want: KindFileDownload, wantKey: "example.com/files/report.PDF"},
		{name: "image download", link: "https://example.com/logo.png", want: KindFileDownload, wantKey: "example.com/logo.png"},
		{name: "login route", link: "https://example.com/login", want: KindSkip},
		{name: "admin subtree", link: "https://example.com/admin/users", want: KindSkip},
		{name: "wordpress admin", link: "https://example.com/wp-admin/index.php", want: KindSkip},
		{name: "search query param", link: "https://example.com/?s=term", want: KindSkip},
		{name: "cart query param", link: "https://example.com/shop?add-to-cart=12", want: KindSkip},
		{name: "mailto", link: "mailto:info@example.com", want: KindSkip},
		{name: "tel", link: "tel:+1555123", want: KindSkip},
		{name: "javascript", link: "javascript:void(0)", want: KindSkip},
		{name: "relative link is not classified", link: "/about", want: KindSkip},
		{name: "feed root", link: "https://example.com/feed", want: KindSkip},
		{name: "feedback is a page", link: "https://example.com/feedback", want: KindInternal, wantKey: "example.com/feedback"},
		{name: "php page", link: "https://example.com/index.php?id=3", want: KindInternal, wantKey: "example.com/index.php?id=3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := c.Classify(tt.link)
			if got.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %q, want %q", tt.link, got.Kind, tt.want)
			}
			if got.Key != tt.wantKey {
				t.Errorf("Classify(%q).Key = %q, want %q", tt.link, got.Key, tt.wantKey)
			}
		})
	}
}

func TestClassifierWithAlias(t *testing.T) {
	t.Parallel()

	base := NewClassifier("example.com")
	aliased := base.WithAlias("https://example.org/")

	if got := base.Classify("https://example.org/x").Kind; got != KindExternal {
		t.Errorf("base classifier: got %q, want external", got)
	}
	if got := aliased.Classify("https://example.org/x").Kind; got != KindInternal {
		t.Errorf("aliased classifier: got %q, want internal", got)
	}
	if aliased.WithAlias("example.com") != aliased {
		t.Error("aliasing the own domain should return the same classifier")
	}
}

func TestClassifierOptions(t *testing.T) {
	t.Parallel()

	c := NewClassifier("example.com",
		WithDownloadExtensions([]string{"epub"}),
		WithExcludedPatterns(nil),
		WithExtraExcludedPatterns([]string{"/private/*"}),
		WithExcludedQueryParams([]string{"session"}),
	)

	tests := []struct {
		link string
		want Kind
	}{
		{link: "https://example.com/book.epub", want: KindFileDownload},
		{link: "https://example.com/report.pdf", want: KindInternal},
		{link: "https://example.com/login", want: KindInternal},
		{link: "https://example.com/private/area", want: KindSkip},
		{link: "https://example.com/?session=1", want: KindSkip},
		{link: "https://example.com/?s=1", want: KindInternal},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.link).Kind; got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{pattern: "/admin/*", path: "/admin/settings", want: true},
		{pattern: "/admin/*", path: "/admin", want: true},
		{pattern: "/admin/*", path: "/administrator", want: false},
		{pattern: "/login*", path: "/login.php", want: true},
		{pattern: "/login*", path: "/blog/login", want: false},
		{pattern: "*.pdf", path: "/docs/file.pdf", want: true},
		{pattern: "print-*", path: "/news/print-article", want: true},
		{pattern: "/feed", path: "/feed", want: true},
		{pattern: "/feed", path: "/feeds", want: false},
		{pattern: "[", path: "/x", want: false},
	}

	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}
