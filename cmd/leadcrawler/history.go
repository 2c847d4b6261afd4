package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/leadcrawler/internal/config"
	"github.com/nao1215/leadcrawler/internal/database"
	"github.com/nao1215/leadcrawler/internal/report"
	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

// digestWidth is the number of digest characters shown in tables.
const digestWidth = 12

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "Show past crawl runs or the history of one domain",
		Long: `History reads the run database written by crawl and retry.

Without arguments it lists recent runs. With a domain it lists every stored
result of that domain, newest first, and marks runs where the route set
changed compared to the previous crawl.

Examples:
  # List the last 20 runs
  leadcrawler history

  # Show the stored summary of run 7
  leadcrawler history --run 7

  # Show how the routes of a domain evolved
  leadcrawler history example.com

  # Machine-readable output
  leadcrawler history example.com --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of runs to list (0 lists all)")
	cmd.Flags().Int64P("run", "r", 0, "Show the stored summary of a run")
	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	runID, err := cmd.Flags().GetInt64("run")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var domain string
	if len(args) == 1 {
		domain, err = urlnorm.DomainKey(args[0])
		if err != nil {
			return fmt.Errorf("invalid domain %q: %w", args[0], err)
		}
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case runID > 0:
		return showRun(ctx, out, db, runID, jsonOutput)
	case domain != "":
		return showDomainHistory(ctx, out, db, domain, jsonOutput)
	default:
		return listRuns(ctx, out, db, limit, jsonOutput)
	}
}

func listRuns(ctx context.Context, out io.Writer, db *database.CrawlDB, limit int, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'leadcrawler crawl' to start a run.")
		return nil
	}

	fmt.Fprintf(out, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-10s  %9s  %10s  %6s  %6s  %7s  %s\n",
		"ID", "Started", "Duration", "Processed", "Successful", "Failed", "Single", "Routes", "Input")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))

	for _, r := range runs {
		duration := "running"
		if r.Finished() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-10s  %9d  %10d  %6d  %6d  %7d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			r.Processed,
			r.Successful,
			r.Failed,
			r.SingleRoute,
			r.TotalRoutes,
			r.InputFile,
		)
	}
	fmt.Fprintln(out, "\nUse 'leadcrawler history --run <id>' to see the summary of a run.")
	return nil
}

func showRun(ctx context.Context, out io.Writer, db *database.CrawlDB, runID int64, jsonOutput bool) error {
	summary, err := db.GetRunSummary(ctx, runID)
	if err != nil {
		return err
	}
	if summary == nil {
		return fmt.Errorf("run %d has not finished", runID)
	}
	summary.RunID = runID

	var w report.Writer = report.NewSimpleWriter(out, report.WithVerbose(true))
	if jsonOutput {
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	}
	_, err = w.Write(summary)
	return err
}

// domainEntry is one line of a domain history.
type domainEntry struct {
	database.ResultRecord
	Changed bool `json:"changed"`
}

func showDomainHistory(ctx context.Context, out io.Writer, db *database.CrawlDB, domain string, jsonOutput bool) error {
	records, err := db.DomainHistory(ctx, domain)
	if err != nil {
		return err
	}

	entries := make([]domainEntry, len(records))
	for i, rec := range records {
		entries[i].ResultRecord = rec
		// records are newest first; compare with the next older one.
		if i+1 < len(records) && rec.Digest != records[i+1].Digest {
			entries[i].Changed = true
		}
	}

	if jsonOutput {
		return writeJSON(out, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "No history found for %s\n", domain)
		return nil
	}

	fmt.Fprintf(out, "History of %s (%d results):\n\n", domain, len(entries))
	fmt.Fprintf(out, "  %-6s  %-20s  %-8s  %-20s  %6s  %-12s  %s\n",
		"Run", "Crawled", "Pass", "Outcome", "Routes", "Digest", "")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 86))

	for _, e := range entries {
		digest := e.Digest
		if len(digest) > digestWidth {
			digest = digest[:digestWidth]
		}
		marker := ""
		if e.Changed {
			marker = "changed"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-8s  %-20s  %6d  %-12s  %s\n",
			e.RunID,
			e.CrawledAt.Local().Format("2006-01-02 15:04:05"),
			e.Pass,
			report.Label(e.Outcome),
			e.RouteCount,
			digest,
			marker,
		)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
