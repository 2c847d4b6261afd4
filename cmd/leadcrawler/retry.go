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
	"github.com/nao1215/leadcrawler/internal/model"
)

// NewRetryCmd creates the retry command.
func NewRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <output-dir>",
		Short: "Retry single-route domains of an existing output directory",
		Long: `Retry scans an output directory for route files holding a single route
and crawls those domains again with the retry budget and failure threshold.

A route file is only replaced when the new crawl completes with more than one
route. The summary explains why the remaining domains stay at one route.

Examples:
  # Retry single-route domains in ./websites
  leadcrawler retry websites

  # Use a larger budget
  leadcrawler retry websites --retry-max-pages 500`,
		Args: cobra.ExactArgs(1),
		RunE: runRetryCmd,
	}
	addCrawlFlags(cmd)
	return cmd
}

func runRetryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	cfg.OutputDir = args[0]
	if err := cfg.ValidateCrawl(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runRetry(ctx, cmd, cfg, logger)
}

func runRetry(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	env, err := newRunEnv(ctx, cfg, logger, cfg.OutputDir)
	if err != nil {
		return err
	}
	defer env.Close()

	candidates, err := env.store.SingleRouteDomains()
	if err != nil {
		return err
	}
	logger.Info("found single-route domains", "dir", cfg.OutputDir, "count", len(candidates))

	retry, results := env.retryPass().Run(ctx, candidates)

	summary := model.NewRunSummary(results, env.startedAt, time.Now())
	summary.Retry = retry
	env.finish(summary)

	if err := writeReport(cmd, cfg, summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("retry interrupted: %w", ctx.Err())
	}
	return nil
}
