// Package workflows provides the Temporal workflow for durable corpus
// ingestion: documents are extracted in parallel activities and the index
// is rebuilt once every extraction has settled.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

// IngestInput is the request for IngestWorkflow.
type IngestInput struct {
	Documents []qa.Document
}

// IngestResult contains the ingestion report and any recorded errors.
type IngestResult struct {
	Report *qa.IngestReport
	Errors []string
}

// IngestWorkflow rebuilds the index from the given documents.
//
// This workflow:
// 1. Extracts every document in parallel, one activity each
// 2. Records documents that could not be read
// 3. Builds, persists and publishes the index from the rest
func IngestWorkflow(ctx workflow.Context, in IngestInput) (*IngestResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting ingestion", "documents", len(in.Documents))

	result := &IngestResult{}
	if len(in.Documents) == 0 {
		return result, temporal.NewNonRetryableApplicationError(qa.ErrNoDocuments.Error(), ErrTypeNoDocuments, nil)
	}

	var a *Activities

	extractCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})
	futures := make([]workflow.Future, len(in.Documents))
	for i, doc := range in.Documents {
		futures[i] = workflow.ExecuteActivity(extractCtx, a.ExtractDocumentActivity, ExtractInput{Position: i, Document: doc})
	}

	var (
		staged []string
		failed []*qa.IngestionError
	)
	for i, f := range futures {
		doc := in.Documents[i]
		var out ExtractOutput
		if err := f.Get(ctx, &out); err != nil {
			logger.Warn("Extraction failed", "document", doc.Name, "error", err)
			result.Errors = append(result.Errors, resultError("failed to extract "+doc.Name, err))
			failed = append(failed, &qa.IngestionError{Document: doc.Name, Path: doc.Path, Err: err})
			continue
		}
		if out.Failure != nil {
			result.Errors = append(result.Errors, resultError("failed to extract "+doc.Name, out.Failure.Err))
			failed = append(failed, out.Failure)
			continue
		}
		staged = append(staged, out.StagedPath)
	}

	logger.Info("Extraction complete", "staged", len(staged), "failed", len(failed))

	buildCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 2,
		},
	})
	var report qa.IngestReport
	if err := workflow.ExecuteActivity(buildCtx, a.BuildIndexActivity, BuildInput{Staged: staged, Failed: failed}).Get(ctx, &report); err != nil {
		result.Errors = append(result.Errors, resultError("failed to build index", err))
		return result, &StepError{Step: "build_index", Err: err, Note: "previous index kept"}
	}
	result.Report = &report

	logger.Info("Ingestion complete",
		"chunks", report.Chunks,
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed))

	return result, nil
}
