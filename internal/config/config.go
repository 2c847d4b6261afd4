package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/leadcrawler/internal/fetch"
	"github.com/nao1215/leadcrawler/internal/tracker"
	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "leadcrawler"

	// DefaultInputFile is the institution list written by the discovery stage.
	DefaultInputFile = "1_discovered_leads.csv"

	// DefaultOutputDir receives one route file per domain.
	DefaultOutputDir = "websites"

	// DefaultWorkers is the number of domains crawled concurrently.
	DefaultWorkers = 10

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = fetch.DefaultTimeout

	// DefaultCrawlDelay is the minimum interval between requests to one domain.
	DefaultCrawlDelay = fetch.DefaultDelay

	// DefaultFailureThreshold is the consecutive failure count that blacklists a domain.
	DefaultFailureThreshold = tracker.DefaultThreshold

	// DefaultMaxPages is the page budget of the first pass.
	DefaultMaxPages = 100

	// DefaultRetryMaxPages is the page budget of the single-route retry pass.
	DefaultRetryMaxPages = 300

	// DefaultRetryFailureThreshold is the failure threshold of the retry pass.
	DefaultRetryFailureThreshold = 6

	// DefaultMaxRedirects is the number of redirects followed per request.
	DefaultMaxRedirects = fetch.DefaultMaxRedirects

	// DefaultMaxBodySize caps response bodies.
	DefaultMaxBodySize = fetch.DefaultMaxBodySize

	// DefaultMaxBackoff caps the optional failure backoff.
	DefaultMaxBackoff = 10 * time.Second

	// DefaultUserAgent identifies the crawler in server logs.
	DefaultUserAgent = fetch.DefaultUserAgent

	// DefaultKafkaTopic receives DomainCrawled events when brokers are set.
	DefaultKafkaTopic = "leadcrawler.domains"
)

// Config holds all options of a crawl run. It is populated from flags,
// environment variables and the optional site file, then passed down
// explicitly.
type Config struct {
	// InputFile is the CSV or XLSX institution list.
	InputFile string

	// OutputDir receives the per-domain route files.
	OutputDir string

	// Limit caps the number of input rows; 0 reads all rows.
	Limit int

	// Workers is the number of concurrent crawl jobs.
	Workers int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// CrawlDelay is the politeness delay between requests to one domain.
	CrawlDelay time.Duration

	// FailureThreshold blacklists a domain after this many consecutive failures.
	FailureThreshold int

	// MaxPages is the page budget per domain.
	MaxPages int

	// RetryEnabled runs the single-route retry pass after the first pass.
	RetryEnabled bool

	// RetryMaxPages is the page budget of the retry pass.
	RetryMaxPages int

	// RetryFailureThreshold is the failure threshold of the retry pass.
	RetryFailureThreshold int

	// MaxRedirects is the redirect limit per request.
	MaxRedirects int

	// MaxBodySize caps response bodies in bytes.
	MaxBodySize int64

	// FailureBackoff enables exponential backoff after consecutive failures.
	// Zero disables it.
	FailureBackoff time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// ExcludedPatterns are path globs that are never crawled.
	ExcludedPatterns []string

	// DownloadExtensions are file extensions that are never fetched.
	DownloadExtensions []string

	// ExcludedQueryParams mark URLs that are never crawled.
	ExcludedQueryParams []string

	// ProxyAddress routes requests through a SOCKS5 proxy when set.
	ProxyAddress string

	// RedisAddress selects the Redis failure tracker when set.
	RedisAddress string

	// RedisNamespace scopes tracker keys in Redis. Processes that use the
	// same namespace share one blacklist. Empty means a fresh namespace
	// per run.
	RedisNamespace string

	// KafkaBrokers enables DomainCrawled events when set.
	KafkaBrokers []string

	// KafkaTopic is the topic for DomainCrawled events.
	KafkaTopic string

	// DBDir is the directory of the history database.
	DBDir string

	// SaveToDB records runs and results in the history database.
	SaveToDB bool

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON selects the JSON log handler.
	LogJSON bool

	// JSONReport prints the run summary as JSON.
	JSONReport bool

	// MarkdownReport prints the run summary as Markdown.
	MarkdownReport bool

	// ReportFile writes the run summary to a file instead of stdout.
	ReportFile string

	// ConfigFilePath is an explicit path to the .leadcrawler file.
	ConfigFilePath string

	// SiteConfigs holds the parsed site file, nil when none was found.
	SiteConfigs *File
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		InputFile:             DefaultInputFile,
		OutputDir:             DefaultOutputDir,
		Workers:               DefaultWorkers,
		Timeout:               DefaultTimeout,
		CrawlDelay:            DefaultCrawlDelay,
		FailureThreshold:      DefaultFailureThreshold,
		MaxPages:              DefaultMaxPages,
		RetryEnabled:          true,
		RetryMaxPages:         DefaultRetryMaxPages,
		RetryFailureThreshold: DefaultRetryFailureThreshold,
		MaxRedirects:          DefaultMaxRedirects,
		MaxBodySize:           DefaultMaxBodySize,
		UserAgent:             DefaultUserAgent,
		ExcludedPatterns:      urlnorm.DefaultExcludedPatterns(),
		DownloadExtensions:    urlnorm.DefaultDownloadExtensions(),
		ExcludedQueryParams:   urlnorm.DefaultExcludedQueryParams(),
		KafkaTopic:            DefaultKafkaTopic,
		DBDir:                 XDGDataDir(),
		SaveToDB:              true,
	}
}

// XDGDataDir returns the data directory (~/.local/share/leadcrawler on Linux).
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory (~/.config/leadcrawler on Linux).
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// SiteConfigFor returns the merged site configuration for a domain key.
func (c *Config) SiteConfigFor(domain string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(domain)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return ErrNoInput
	}
	if c.Limit < 0 {
		return ErrInvalidLimit
	}
	return c.ValidateCrawl()
}

// ValidateCrawl checks the options shared by all crawling commands.
// The retry command uses it because it has no input file.
func (c *Config) ValidateCrawl() error {
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.MaxPages <= 0 || c.RetryMaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.FailureThreshold <= 0 || c.RetryFailureThreshold <= 0 {
		return ErrInvalidFailureThreshold
	}
	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}
	if c.FailureBackoff < 0 {
		return ErrInvalidBackoff
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return ErrKafkaTopicRequired
	}
	return nil
}
