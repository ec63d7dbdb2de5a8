package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/filingqa/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	var (
		serverURL string
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live terminal dashboard for a running server",
		Long: `Poll a running 'filingqa serve' and show index state, question rates by
status and answer latency.

Keys: q quit, r refresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return monitor.Run(serverURL, interval)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8090", "filingqa server URL")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}
