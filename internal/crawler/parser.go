package crawler

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

// skipPrefixes are href values that never point to a page.
var skipPrefixes = []string{"javascript:", "mailto:", "tel:", "#"} //nolint:gochecknoglobals // read-only

// ParseResult holds what the spider needs from one HTML page.
type ParseResult struct {
	// Title is the text of the <title> element.
	Title string

	// Links are absolute, fragment-free http(s) URLs in document order,
	// without duplicates.
	Links []string

	// ScriptOnly is set when the page has scripts but no followable anchors.
	ScriptOnly bool
}

// ParseLinks extracts anchor targets from body. Relative hrefs are resolved
// against the document's <base href> if present, otherwise pageURL.
func ParseLinks(body, pageURL string) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base := pageURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := urlnorm.FetchURL(href, pageURL); err == nil {
			base = resolved
		}
	}

	result := &ParseResult{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	seen := make(map[string]struct{})

	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || hasSkipPrefix(href) {
			return
		}
		link, err := urlnorm.FetchURL(href, base)
		if err != nil {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		result.Links = append(result.Links, link)
	})

	result.ScriptOnly = len(result.Links) == 0 && doc.Find("script").Length() > 0
	return result, nil
}

func hasSkipPrefix(href string) bool {
	lower := strings.ToLower(href)
	for _, p := range skipPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
