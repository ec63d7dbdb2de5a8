package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
	"github.com/fyrsmithlabs/filingqa/internal/workflows"
)

type ingestOptions struct {
	durable bool
	docs    []string
	json    bool
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract, chunk and embed the filings, then publish a new index",
		Long: `Extract text from every filing, split it into overlapping chunks, embed
them and persist the index. Documents that cannot be read are reported and
skipped; the previous index is kept only if every document fails.

Examples:
  # Ingest the configured filings
  filingqa ingest

  # Ingest specific files
  filingqa ingest --doc "Apple 10-K=data/aapl.pdf" --doc "Tesla 10-K=data/tsla.pdf"

  # Run ingestion as a Temporal workflow (requires 'filingqa worker')
  filingqa ingest --durable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, root, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.durable, "durable", false, "run ingestion as a Temporal workflow")
	cmd.Flags().StringArrayVar(&opts.docs, "doc", nil, "document as NAME=PATH (repeatable; default: ingest.documents)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the report as JSON")
	return cmd
}

// parseDocs parses NAME=PATH pairs. A bare path is named after its file.
func parseDocs(args []string) ([]qa.Document, error) {
	docs := make([]qa.Document, 0, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok {
			path = arg
			name = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if name == "" || path == "" {
			return nil, fmt.Errorf("invalid --doc %q: want NAME=PATH", arg)
		}
		docs = append(docs, qa.Document{Name: name, Path: path})
	}
	return docs, nil
}

func runIngest(cmd *cobra.Command, root *rootOptions, opts *ingestOptions) error {
	ctx := cmd.Context()

	a, err := setup(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	docs := a.reg.Documents()
	if len(opts.docs) > 0 {
		if docs, err = parseDocs(opts.docs); err != nil {
			return err
		}
	}

	var report qa.IngestReport
	if opts.durable {
		c, err := workflows.Dial(a.cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		a.logger.Info(ctx, "starting durable ingest", zap.Int("documents", len(docs)), zap.String("task_queue", a.cfg.Temporal.TaskQueue))
		result, err := workflows.RunIngest(ctx, c, a.cfg.Temporal.TaskQueue, docs)
		if err != nil {
			return err
		}
		report = *result.Report
	} else {
		report, err = a.reg.QA().Ingest(ctx, docs)
		if err != nil {
			return err
		}
	}

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func printReport(w io.Writer, r qa.IngestReport) {
	fmt.Fprintf(w, "Indexed %d chunks from %d of %d document(s) in %s\n",
		r.Chunks, len(r.Succeeded), r.Documents, r.Duration.Round(time.Millisecond))
	for _, name := range r.Succeeded {
		fmt.Fprintf(w, "  ok    %s\n", name)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  skip  %s: %v\n", f.Document, f.Err)
	}
	if r.Duplicates > 0 {
		fmt.Fprintf(w, "Dropped %d duplicate chunk(s)\n", r.Duplicates)
	}
	if r.Redactions > 0 {
		fmt.Fprintf(w, "Redacted %d secret(s)\n", r.Redactions)
	}
	fmt.Fprintf(w, "Index written to %s\n", r.Dir)
}

