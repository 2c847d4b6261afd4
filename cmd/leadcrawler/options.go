package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nao1215/leadcrawler/internal/config"
)

// addCrawlFlags registers the flags shared by crawl and retry.
func addCrawlFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.StringP("output-dir", "d", config.DefaultOutputDir,
		"Directory receiving one route file per domain")
	f.IntP("workers", "w", config.DefaultWorkers,
		"Number of domains crawled concurrently")
	f.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	f.Duration("crawl-delay", config.DefaultCrawlDelay,
		"Minimum interval between requests to one domain")
	f.Int("failure-threshold", config.DefaultFailureThreshold,
		"Consecutive failures that blacklist a domain")
	f.IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of routes discovered per domain")
	f.Int("retry-max-pages", config.DefaultRetryMaxPages,
		"Page budget of the single-route retry pass")
	f.Int("retry-failure-threshold", config.DefaultRetryFailureThreshold,
		"Failure threshold of the single-route retry pass")
	f.Int("max-redirects", config.DefaultMaxRedirects,
		"Redirects followed per request")
	f.Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	f.Duration("failure-backoff", 0,
		"Base delay of exponential backoff after failures (0 disables)")
	f.String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	f.StringSlice("exclude", nil,
		"Additional path globs that are never crawled")

	f.String("proxy", "",
		"Route requests through a SOCKS5 proxy (host:port)")
	f.String("redis", "",
		"Share the failure tracker through Redis at host:port")
	f.String("redis-namespace", "",
		"Redis key namespace; crawlers using the same one share a blacklist (default: random per run)")
	f.StringSlice("kafka-brokers", nil,
		"Publish a DomainCrawled event per route file to these brokers")
	f.String("kafka-topic", config.DefaultKafkaTopic,
		"Topic for DomainCrawled events")
	f.Bool("no-db", false,
		"Do not record the run in the history database")
	f.String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	f.StringP("config", "c", "",
		"Site configuration file (default: .leadcrawler in current, config or home directory)")
	f.BoolP("json", "j", false,
		"Print the run summary as JSON (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false,
		"Print the run summary as Markdown (mutually exclusive with --json)")
	f.StringP("output", "o", "",
		"Write the run summary to a file (creates directories if needed)")
}

// buildConfig creates a Config from the flags of cmd. Flags left at their
// defaults can be set through LEADCRAWLER_* environment variables.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	applyViper(cfg, v)
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if err := loadSiteConfigs(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyViper(cfg *config.Config, v *viper.Viper) {
	if v.IsSet("input") {
		cfg.InputFile = v.GetString("input")
	}
	if v.IsSet("limit") {
		cfg.Limit = v.GetInt("limit")
	}
	if v.IsSet("retry") {
		cfg.RetryEnabled = v.GetBool("retry")
	}

	cfg.OutputDir = v.GetString("output-dir")
	cfg.Workers = v.GetInt("workers")
	cfg.Timeout = v.GetDuration("timeout")
	cfg.CrawlDelay = v.GetDuration("crawl-delay")
	cfg.FailureThreshold = v.GetInt("failure-threshold")
	cfg.MaxPages = v.GetInt("max-pages")
	cfg.RetryMaxPages = v.GetInt("retry-max-pages")
	cfg.RetryFailureThreshold = v.GetInt("retry-failure-threshold")
	cfg.MaxRedirects = v.GetInt("max-redirects")
	cfg.MaxBodySize = v.GetInt64("max-body-size")
	cfg.FailureBackoff = v.GetDuration("failure-backoff")
	cfg.UserAgent = v.GetString("user-agent")
	cfg.ExcludedPatterns = append(cfg.ExcludedPatterns, splitList(v.GetStringSlice("exclude"))...)

	cfg.ProxyAddress = v.GetString("proxy")
	cfg.RedisAddress = v.GetString("redis")
	cfg.RedisNamespace = v.GetString("redis-namespace")
	cfg.KafkaBrokers = splitList(v.GetStringSlice("kafka-brokers"))
	cfg.KafkaTopic = v.GetString("kafka-topic")
	cfg.SaveToDB = !v.GetBool("no-db")
	cfg.DBDir = v.GetString("db-dir")

	cfg.ConfigFilePath = v.GetString("config")
	cfg.JSONReport = v.GetBool("json")
	cfg.MarkdownReport = v.GetBool("markdown")
	cfg.ReportFile = v.GetString("output")
}

// splitList flattens comma separated values, as given in environment
// variables, and drops empty items.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for item := range strings.SplitSeq(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// loadSiteConfigs reads the site file. An explicit path that does not exist
// is an error; a missing default file is not.
func loadSiteConfigs(cfg *config.Config) error {
	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path == "" {
		if cfg.ConfigFilePath != "" {
			return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
		}
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
		return nil
	}

	sites, err := config.LoadConfigFile(path)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return fmt.Errorf("%w: %s", err, path)
		}
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	cfg.SiteConfigs = sites
	return nil
}
