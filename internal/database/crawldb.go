package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/leadcrawler/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "leadcrawler.db"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// CrawlDB provides SQLite-based storage for crawl runs and their results.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  time.Time
	InputFile   string
	Processed   int
	Successful  int
	Failed      int
	SingleRoute int
	TotalRoutes int
}

// Finished reports whether the run completed and stored its summary.
func (r RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// ResultRecord is one row of the crawl_results table.
type ResultRecord struct {
	ID           int64
	RunID        int64
	Domain       string
	Pass         model.Pass
	Outcome      model.Outcome
	RouteCount   int
	Digest       string
	ErrorKind    string
	PagesFetched int
	OutputFile   string
	Routes       []string
	CrawledAt    time.Time
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per invocation of the crawl or retry command
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		input_file TEXT NOT NULL DEFAULT '',
		processed INTEGER NOT NULL DEFAULT 0,
		successful INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		single_route INTEGER NOT NULL DEFAULT 0,
		total_routes INTEGER NOT NULL DEFAULT 0,
		summary_json TEXT NOT NULL DEFAULT ''
	);

	-- One row per domain and pass within a run
	CREATE TABLE IF NOT EXISTS crawl_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		domain TEXT NOT NULL,
		pass TEXT NOT NULL,
		outcome TEXT NOT NULL,
		route_count INTEGER NOT NULL,
		digest TEXT NOT NULL DEFAULT '',
		error_kind TEXT NOT NULL DEFAULT '',
		pages_fetched INTEGER NOT NULL DEFAULT 0,
		output_file TEXT NOT NULL DEFAULT '',
		routes_json TEXT NOT NULL DEFAULT '[]',
		crawled_at TEXT NOT NULL,
		UNIQUE(run_id, domain, pass)
	);

	CREATE INDEX IF NOT EXISTS idx_results_domain ON crawl_results(domain);
	CREATE INDEX IF NOT EXISTS idx_results_run ON crawl_results(run_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// StartRun inserts a new run and returns its ID.
func (cdb *CrawlDB) StartRun(ctx context.Context, inputFile string, startedAt time.Time) (int64, error) {
	query := `INSERT INTO runs (started_at, input_file) VALUES (?, ?)`

	result, err := cdb.db.ExecContext(ctx, query, formatTimestamp(startedAt), inputFile)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}
	return id, nil
}

// FinishRun stores the counters and the full summary of a run.
func (cdb *CrawlDB) FinishRun(ctx context.Context, runID int64, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	query := `
	UPDATE runs
	SET finished_at = ?, processed = ?, successful = ?, failed = ?,
		single_route = ?, total_routes = ?, summary_json = ?
	WHERE id = ?
	`

	result, err := cdb.db.ExecContext(ctx, query,
		formatTimestamp(summary.FinishedAt),
		summary.Processed,
		summary.Successful,
		summary.Failed,
		summary.SingleRoute,
		summary.TotalRoutes,
		string(summaryJSON),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

// SaveResult stores the result of one domain. A second result for the same
// run, domain, and pass replaces the first.
func (cdb *CrawlDB) SaveResult(ctx context.Context, runID int64, r *model.CrawlResult) error {
	routes := r.Routes
	if routes == nil {
		routes = []string{}
	}
	routesJSON, err := json.Marshal(routes)
	if err != nil {
		return fmt.Errorf("failed to serialize routes: %w", err)
	}

	pass := r.Pass
	if pass == "" {
		pass = model.PassInitial
	}

	crawledAt := r.StartedAt
	if crawledAt.IsZero() {
		crawledAt = time.Now()
	}

	query := `
	INSERT INTO crawl_results (
		run_id, domain, pass, outcome, route_count, digest,
		error_kind, pages_fetched, output_file, routes_json, crawled_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, domain, pass) DO UPDATE SET
		outcome = excluded.outcome,
		route_count = excluded.route_count,
		digest = excluded.digest,
		error_kind = excluded.error_kind,
		pages_fetched = excluded.pages_fetched,
		output_file = excluded.output_file,
		routes_json = excluded.routes_json,
		crawled_at = excluded.crawled_at
	`

	_, err = cdb.db.ExecContext(ctx, query,
		runID,
		r.Domain,
		string(pass),
		string(r.Outcome),
		r.RouteCount,
		r.Digest,
		r.ErrorKind,
		r.PagesFetched,
		r.OutputFile,
		string(routesJSON),
		formatTimestamp(crawledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save result for %s: %w", r.Domain, err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit of 0 returns all runs.
func (cdb *CrawlDB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
	SELECT id, started_at, finished_at, input_file, processed, successful,
		failed, single_route, total_routes
	FROM runs
	ORDER BY id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var startedAt, finishedAt string

		err := rows.Scan(
			&run.ID,
			&startedAt,
			&finishedAt,
			&run.InputFile,
			&run.Processed,
			&run.Successful,
			&run.Failed,
			&run.SingleRoute,
			&run.TotalRoutes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.StartedAt = parseTimestamp(startedAt)
		run.FinishedAt = parseTimestamp(finishedAt)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRunSummary returns the stored summary of a finished run.
func (cdb *CrawlDB) GetRunSummary(ctx context.Context, runID int64) (*model.RunSummary, error) {
	query := `SELECT summary_json FROM runs WHERE id = ?`

	var summaryJSON string
	err := cdb.db.QueryRowContext(ctx, query, runID).Scan(&summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run summary: %w", err)
	}
	if summaryJSON == "" {
		return nil, nil
	}

	var summary model.RunSummary
	if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &summary, nil
}

// DomainHistory returns every stored result for domain, newest first.
func (cdb *CrawlDB) DomainHistory(ctx context.Context, domain string) ([]ResultRecord, error) {
	query := `
	SELECT id, run_id, domain, pass, outcome, route_count, digest,
		error_kind, pages_fetched, output_file, routes_json, crawled_at
	FROM crawl_results
	WHERE domain = ?
	ORDER BY run_id DESC, id DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query domain history: %w", err)
	}
	defer rows.Close()

	var results []ResultRecord
	for rows.Next() {
		var rec ResultRecord
		var pass, outcome, routesJSON, crawledAt string

		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Domain,
			&pass,
			&outcome,
			&rec.RouteCount,
			&rec.Digest,
			&rec.ErrorKind,
			&rec.PagesFetched,
			&rec.OutputFile,
			&routesJSON,
			&crawledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		if err := json.Unmarshal([]byte(routesJSON), &rec.Routes); err != nil {
			return nil, fmt.Errorf("failed to parse routes of %s: %w", rec.Domain, err)
		}
		rec.Pass = model.Pass(pass)
		rec.Outcome = model.Outcome(outcome)
		rec.CrawledAt = parseTimestamp(crawledAt)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// LatestDigest returns the route digest of the newest stored result for
// domain, or "" when the domain has no history.
func (cdb *CrawlDB) LatestDigest(ctx context.Context, domain string) (string, error) {
	query := `
	SELECT digest FROM crawl_results
	WHERE domain = ?
	ORDER BY run_id DESC, id DESC
	LIMIT 1
	`

	var digest string
	err := cdb.db.QueryRowContext(ctx, query, domain).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest digest: %w", err)
	}
	return digest, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp returns the zero time when s matches no known format.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
