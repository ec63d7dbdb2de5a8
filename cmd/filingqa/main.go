// Package main implements the filingqa command line.
//
// filingqa answers questions about a fixed corpus of 10-K filings. The same
// binary ingests the corpus, answers one-off questions, runs evaluations,
// and serves the HTTP API, the MCP stdio server and the durable ingestion
// worker.
//
// Usage:
//
//	# Build the index from the configured filings
//	filingqa ingest
//
//	# Ask a question
//	filingqa ask "What was Apple's total revenue for fiscal 2024?"
//
//	# Serve the HTTP API, reloading when the index changes on disk
//	filingqa serve --watch
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received %v, shutting down\n", sig)
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "filingqa",
		Short: "Question answering over 10-K filings with cited sources",
		Long: `filingqa answers natural-language questions about a fixed set of 10-K
filings. Every answer cites the document and page it came from, and questions
the filings cannot answer are refused rather than guessed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/filingqa/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	root.AddCommand(
		newIngestCmd(opts),
		newAskCmd(opts),
		newEvaluateCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newWorkerCmd(opts),
		newMonitorCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "filingqa by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
