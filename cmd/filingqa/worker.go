package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/workflows"
)

func newWorkerCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker for durable ingestion",
		Long: `Run a Temporal worker that executes ingestion workflows started with
'filingqa ingest --durable'. Extracted pages are staged under
<index.dir>/staging between activities.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := workflows.Dial(a.cfg.Temporal)
			if err != nil {
				return err
			}
			defer c.Close()

			w := workflows.NewWorker(c, a.cfg.Temporal.TaskQueue, &workflows.Activities{
				Service:    a.reg.QA(),
				StagingDir: filepath.Join(a.cfg.Index.Dir, "staging"),
			})
			if err := w.Start(); err != nil {
				return err
			}
			a.logger.Info(ctx, "worker started",
				zap.String("host_port", a.cfg.Temporal.HostPort),
				zap.String("task_queue", a.cfg.Temporal.TaskQueue))

			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
}
