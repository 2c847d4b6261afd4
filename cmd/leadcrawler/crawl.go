package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/leadcrawler/internal/config"
	"github.com/nao1215/leadcrawler/internal/input"
	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/pipeline"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every website of an institution list",
		Long: `Crawl reads an institution list (CSV or XLSX with a Website column) and
crawls each website breadth-first within its own domain.

For every domain the normalised routes are written to
<output-dir>/<domain>.txt. Domains that fail repeatedly are blacklisted for
the rest of the pass. Domains that yield a single route are retried once with
a larger budget unless --retry=false is given.

Every flag can also be set through an environment variable with the
LEADCRAWLER_ prefix, e.g. LEADCRAWLER_WORKERS=20 or
LEADCRAWLER_KAFKA_BROKERS=broker1:9092,broker2:9092.

Examples:
  # Crawl the default input file into ./websites
  leadcrawler crawl

  # Crawl the first 50 rows with 20 workers
  leadcrawler crawl -i leads.xlsx -l 50 -w 20

  # Share the failure tracker between machines through Redis
  leadcrawler crawl --redis localhost:6379 --redis-namespace leads-2026q4

  # Write a Markdown summary
  leadcrawler crawl -m -o reports/run.md`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("input", "i", config.DefaultInputFile,
		"Institution list (.csv or .xlsx)")
	cmd.Flags().IntP("limit", "l", 0,
		"Maximum number of input rows to process (0 reads all rows)")
	cmd.Flags().Bool("retry", true,
		"Retry single-route domains with a larger budget after the main pass")
	addCrawlFlags(cmd)

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cmd, cfg, logger)
}

// runCrawl executes the main pass and the optional retry pass, then prints
// the run summary. An interrupted run still records and prints what it has.
func runCrawl(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	institutions, err := input.ReadFile(cfg.InputFile, cfg.Limit)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	jobs, rejected := model.BuildJobs(institutions)

	logger.Info("starting crawl",
		"input", cfg.InputFile,
		"rows", len(institutions),
		"jobs", len(jobs),
		"rejected", len(rejected),
		"workers", cfg.Workers,
	)

	env, err := newRunEnv(ctx, cfg, logger, cfg.InputFile)
	if err != nil {
		return err
	}
	defer env.Close()

	progress := newProgress(cmd.ErrOrStderr(), len(jobs))
	bp := pipeline.NewBatchProcessor(env.factory().New,
		pipeline.WithConcurrency(cfg.Workers),
		pipeline.WithBatchLogger(logger),
		pipeline.WithCallback(progress.done),
	)
	results := bp.Run(ctx, jobs)

	var retry *model.RetrySummary
	if cfg.RetryEnabled && ctx.Err() == nil {
		retry, results = env.retryPass().Run(ctx, results)
	}

	results = append(results, rejected...)
	summary := model.NewRunSummary(results, env.startedAt, time.Now())
	summary.Retry = retry
	env.finish(summary)

	if err := writeReport(cmd, cfg, summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("crawl interrupted: %w", ctx.Err())
	}
	return nil
}
