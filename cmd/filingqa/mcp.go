package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/filingqa/internal/mcp"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Run an MCP server on stdin/stdout exposing ask_filings, index_status and
ingest_filings. Logs are written to stderr.

Example client configuration:
  {"mcpServers": {"filingqa": {"command": "filingqa", "args": ["mcp"]}}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.loadIndex(ctx); err != nil {
				return err
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:         "filingqa",
				Version:      version,
				Logger:       a.logger.Underlying(),
				Documents:    a.reg.Documents(),
				DocumentRoot: a.cfg.Ingest.Root,
			}, a.reg.QA(), a.reg.Scrubber())
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
