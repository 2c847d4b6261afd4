package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nao1215/leadcrawler/internal/config"
	"github.com/nao1215/leadcrawler/internal/database"
	"github.com/nao1215/leadcrawler/internal/fetch"
	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/notify"
	"github.com/nao1215/leadcrawler/internal/output"
	"github.com/nao1215/leadcrawler/internal/pipeline"
	"github.com/nao1215/leadcrawler/internal/report"
	"github.com/nao1215/leadcrawler/internal/tracker"
)

// redisKeyTTL bounds the lifetime of tracker keys of abandoned runs.
const redisKeyTTL = 24 * time.Hour

// runEnv holds the resources of one crawl or retry run.
type runEnv struct {
	cfg    *config.Config
	logger *slog.Logger

	startedAt time.Time
	runID     int64
	db        *database.CrawlDB

	tracker      tracker.Tracker
	retryTracker tracker.Tracker
	redis        *redis.Client

	store     *output.Store
	publisher notify.Publisher
}

// newRunEnv checks the proxy and opens the database, trackers and event
// publisher. source is recorded as the input of the run.
func newRunEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger, source string) (_ *runEnv, err error) {
	env := &runEnv{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
		store:     output.NewStore(cfg.OutputDir),
		publisher: notify.Nop{},
	}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	if cfg.ProxyAddress != "" {
		if err := fetch.CheckProxy(ctx, cfg.ProxyAddress); err != nil {
			return nil, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, err)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}

	if cfg.SaveToDB {
		env.db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		env.runID, err = env.db.StartRun(ctx, source, env.startedAt)
		if err != nil {
			return nil, err
		}
		logger.Info("database opened", "path", env.db.Path(), "run_id", env.runID)
	}

	if err := env.openTrackers(ctx); err != nil {
		return nil, err
	}

	if len(cfg.KafkaBrokers) > 0 {
		env.publisher, err = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		logger.Info("publishing crawl events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	return env, nil
}

// openTrackers creates the first-pass and retry trackers. With Redis both
// live under the key prefix of the configured namespace.
func (e *runEnv) openTrackers(ctx context.Context) error {
	if e.cfg.RedisAddress == "" {
		e.tracker = tracker.NewMemory(e.cfg.FailureThreshold)
		e.retryTracker = tracker.NewMemory(e.cfg.RetryFailureThreshold)
		return nil
	}

	e.redis = redis.NewClient(&redis.Options{Addr: e.cfg.RedisAddress})
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", e.cfg.RedisAddress, err)
	}

	prefix := trackerKeyPrefix(e.cfg.RedisNamespace)
	e.tracker = tracker.NewRedis(e.redis, e.cfg.FailureThreshold,
		tracker.WithKeyPrefix(prefix), tracker.WithTTL(redisKeyTTL))
	e.retryTracker = tracker.NewRedis(e.redis, e.cfg.RetryFailureThreshold,
		tracker.WithKeyPrefix(prefix+"retry:"), tracker.WithTTL(redisKeyTTL))
	e.logger.Info("using redis failure tracker", "address", e.cfg.RedisAddress, "prefix", prefix)
	return nil
}

// trackerKeyPrefix returns the Redis key prefix of namespace. Without a
// namespace every run gets its own random one.
func trackerKeyPrefix(namespace string) string {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = uuid.NewString()
	}
	return tracker.DefaultKeyPrefix + namespace + ":"
}

// factory returns the first-pass pipeline factory.
func (e *runEnv) factory() *pipeline.Factory {
	opts := []pipeline.FactoryOption{
		pipeline.WithStore(e.store),
		pipeline.WithPublisher(e.publisher),
		pipeline.WithFactoryLogger(e.logger),
	}
	if e.db != nil {
		opts = append(opts, pipeline.WithRecorder(e.db, e.runID))
	}
	return pipeline.NewFactory(e.cfg, e.tracker, opts...)
}

// retryPass returns the single-route retry pass.
func (e *runEnv) retryPass() *pipeline.RetryPass {
	return pipeline.NewRetryPass(e.factory().ForRetry(e.retryTracker).New,
		pipeline.WithRetryConcurrency(e.cfg.Workers),
		pipeline.WithRetryLogger(e.logger),
		pipeline.WithResetTrackers(e.tracker, e.retryTracker),
	)
}

// finish records the summary of the run.
func (e *runEnv) finish(summary *model.RunSummary) {
	summary.RunID = e.runID
	if e.db == nil {
		return
	}
	// The run is recorded even when the command was interrupted.
	if err := e.db.FinishRun(context.Background(), e.runID, summary); err != nil {
		e.logger.Error("failed to record run summary", "run_id", e.runID, "error", err)
	}
}

// Close releases every resource held by the run.
func (e *runEnv) Close() {
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			e.logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			e.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.logger.Warn("failed to close database", "error", err)
		}
	}
}

// writeReport prints the run summary in the configured format to stdout or
// to cfg.ReportFile.
func writeReport(cmd *cobra.Command, cfg *config.Config, summary *model.RunSummary) (err error) {
	out := cmd.OutOrStdout()
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		out = f
	}

	_, err = reportWriter(out, cfg).Write(summary)
	return err
}

func reportWriter(out io.Writer, cfg *config.Config) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
