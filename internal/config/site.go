package config

import (
	"maps"

	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

// SiteConfig holds per-domain crawl settings from the site file.
type SiteConfig struct {
	// Cookie is sent verbatim with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers for the site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxPages overrides the page budget for the site. Zero keeps the global value.
	MaxPages int `yaml:"maxPages,omitempty"`

	// IgnorePatterns are additional path globs that are never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// Seed replaces the website from the input list as the starting URL.
	Seed string `yaml:"seed,omitempty"`
}

// File is the structure of the .leadcrawler site file.
type File struct {
	// Sites maps domains to their settings. Keys may be written with or
	// without "www." and scheme; they are compared by domain key.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden. A seed only makes
	// sense per site, so Defaults.Seed is ignored.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the settings for a domain key, merged over Defaults.
func (cf *File) GetSiteConfig(domain string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)
	result.Seed = ""

	siteConfig, ok := cf.lookup(domain)
	if !ok {
		return result
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if siteConfig.Seed != "" {
		result.Seed = siteConfig.Seed
	}
	return result
}

func (cf *File) lookup(domain string) (SiteConfig, bool) {
	if sc, ok := cf.Sites[domain]; ok {
		return sc, true
	}
	for key, sc := range cf.Sites {
		if k, err := urlnorm.DomainKey(key); err == nil && k == domain {
			return sc, true
		}
	}
	return SiteConfig{}, false
}
