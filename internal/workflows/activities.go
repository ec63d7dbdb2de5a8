package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/filingqa/internal/chunker"
	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

// Activities run ingestion steps against a qa.Service. Extracted pages are
// staged as JSON files under StagingDir rather than passed through workflow
// history, so every worker must share that directory.
type Activities struct {
	Service    *qa.Service
	StagingDir string
}

// ExtractInput names one document and its position in the request.
type ExtractInput struct {
	Position int
	Document qa.Document
}

// ExtractOutput is a staged document, or the reason it was skipped.
type ExtractOutput struct {
	Name       string
	StagedPath string
	Pages      int
	Redactions int
	Failure    *qa.IngestionError `json:",omitempty"`
}

// BuildInput lists staged documents and extraction failures.
type BuildInput struct {
	Staged []string
	Failed []*qa.IngestionError
}

// ExtractDocumentActivity reads and scrubs one document and stages its
// pages. Unreadable documents are returned as ExtractOutput.Failure, not
// as an activity error, so they are not retried.
func (a *Activities) ExtractDocumentActivity(ctx context.Context, in ExtractInput) (out *ExtractOutput, err error) {
	start := time.Now()
	defer observe(ctx, "extract_document", start, &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ed, err := a.Service.ExtractDocument(ctx, in.Document)
	if err != nil {
		var ie *qa.IngestionError
		if errors.As(err, &ie) {
			return &ExtractOutput{Name: in.Document.Name, Failure: ie}, nil
		}
		return nil, err
	}

	if err := os.MkdirAll(a.StagingDir, 0o755); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("creating staging dir", ErrTypeStaging, err)
	}
	path := filepath.Join(a.StagingDir, fmt.Sprintf("%03d-%s.json", in.Position, chunker.Slug(ed.Name)))
	data, err := json.Marshal(ed)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("staging %s: %w", ed.Name, err)
	}
	instruments().staged.Add(ctx, 1)

	activity.GetLogger(ctx).Info("staged document", "document", ed.Name, "pages", len(ed.Pages))
	return &ExtractOutput{
		Name:       ed.Name,
		StagedPath: path,
		Pages:      len(ed.Pages),
		Redactions: ed.Redactions,
	}, nil
}

// BuildIndexActivity indexes the staged documents and publishes the result.
func (a *Activities) BuildIndexActivity(ctx context.Context, in BuildInput) (report *qa.IngestReport, err error) {
	start := time.Now()
	defer observe(ctx, "build_index", start, &err)

	docs := make([]qa.ExtractedDocument, 0, len(in.Staged))
	for _, path := range in.Staged {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, temporal.NewNonRetryableApplicationError("reading staged document "+path, ErrTypeStaging, err)
		}
		var ed qa.ExtractedDocument
		if err := json.Unmarshal(data, &ed); err != nil {
			return nil, temporal.NewNonRetryableApplicationError("decoding staged document "+path, ErrTypeStaging, err)
		}
		docs = append(docs, ed)
	}

	r, err := a.Service.BuildIndex(ctx, docs, in.Failed)
	if errors.Is(err, qa.ErrAllDocumentsFailed) {
		return &r, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeAllDocumentsFailed, err)
	}
	if err != nil {
		return nil, err
	}

	for _, path := range in.Staged {
		if err := os.Remove(path); err != nil {
			activity.GetLogger(ctx).Warn("failed to remove staged document (non-fatal)", "path", path, "error", err)
		}
	}
	return &r, nil
}
