package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

// Dial connects to the Temporal frontend named by cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

// NewWorker registers the ingestion workflow and activities on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(IngestWorkflow)
	w.RegisterActivity(acts)
	return w
}

// RunIngest starts IngestWorkflow and waits for its result.
func RunIngest(ctx context.Context, c client.Client, taskQueue string, docs []qa.Document) (*IngestResult, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "filingqa-ingest-" + uuid.NewString(),
		TaskQueue: taskQueue,
	}, IngestWorkflow, IngestInput{Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("starting ingest workflow: %w", err)
	}

	var result IngestResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("ingest workflow %s: %w", run.GetID(), err)
	}
	return &result, nil
}
