package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/leadcrawler/internal/log"
)

// NewRootCmd creates the root command for leadcrawler.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadcrawler",
		Short: "Domain-scoped website crawler for lead discovery",
		Long: `leadcrawler discovers the internal pages of institution websites.

Each website is crawled breadth-first without leaving its domain. The
normalised routes of every domain are written to <output-dir>/<domain>.txt,
ready for the contact extraction stage. Domains that yield a single route are
retried once with a larger budget after the main pass.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewRetryCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getBoolFlag reads a flag from the command or, failing that, the root's
// persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger builds the redacting logger on stderr and installs it as the
// default.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	logger := log.NewLogger(cmd.ErrOrStderr(), getBoolFlag(cmd, "verbose"), getBoolFlag(cmd, "log-json"))
	slog.SetDefault(logger)
	return logger
}
