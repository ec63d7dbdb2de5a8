package workflows

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/filingqa/internal/answer"
	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/embeddings"
	"github.com/fyrsmithlabs/filingqa/internal/extract"
	"github.com/fyrsmithlabs/filingqa/internal/generation"
	"github.com/fyrsmithlabs/filingqa/internal/index"
	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

type mapExtractor map[string][]extract.Page

func (m mapExtractor) Extract(_ context.Context, path string) ([]extract.Page, error) {
	pages, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return pages, nil
}

func newActivities(t *testing.T) *Activities {
	t.Helper()
	cfg := config.Default()
	cfg.Index.Dir = filepath.Join(t.TempDir(), "rag_index")
	cfg.Embeddings.Model = "hash"

	emb := embeddings.NewHashProvider(64)
	svc, err := qa.New(cfg, qa.Dependencies{
		Extractor: mapExtractor{
			"apple.pdf": {{Number: 282, Text: "Total revenue was $391,036 million"}},
			"tesla.pdf": {{Number: 51, Text: "Total revenues were $96,773 million"}},
		},
		Embedder:  emb,
		Index:     index.New(emb),
		Assembler: answer.New(generation.NewExtractive(), answer.Options{}, nil),
	})
	require.NoError(t, err)
	return &Activities{Service: svc, StagingDir: filepath.Join(t.TempDir(), "staging")}
}

func TestIngestWorkflow(t *testing.T) {
	t.Run("indexes readable documents and reports the rest", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		acts := newActivities(t)
		env.RegisterWorkflow(IngestWorkflow)
		env.RegisterActivity(acts)

		env.ExecuteWorkflow(IngestWorkflow, IngestInput{Documents: []qa.Document{
			{Path: "apple.pdf", Name: "Apple 10-K"},
			{Path: "missing.pdf", Name: "Missing 10-K"},
			{Path: "tesla.pdf", Name: "Tesla 10-K"},
		}})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result IngestResult
		require.NoError(t, env.GetWorkflowResult(&result))
		require.NotNil(t, result.Report)
		assert.Equal(t, []string{"Apple 10-K", "Tesla 10-K"}, result.Report.Succeeded)
		assert.Equal(t, 2, result.Report.Chunks)
		require.Len(t, result.Report.Failed, 1)
		assert.Equal(t, "Missing 10-K", result.Report.Failed[0].Document)
		assert.Len(t, result.Errors, 1)

		assert.True(t, acts.Service.Ready())
		staged, _ := filepath.Glob(filepath.Join(acts.StagingDir, "*.json"))
		assert.Empty(t, staged)

		res := acts.Service.AnswerQuestion(context.Background(), "What was the revenue?")
		assert.Equal(t, qa.StatusAnswered, res.Status)
	})

	t.Run("fails and keeps no index when every document fails", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		acts := newActivities(t)
		env.RegisterWorkflow(IngestWorkflow)
		env.RegisterActivity(acts)

		env.ExecuteWorkflow(IngestWorkflow, IngestInput{Documents: []qa.Document{
			{Path: "missing.pdf", Name: "Missing 10-K"},
		}})

		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
		assert.False(t, acts.Service.Ready())
	})

	t.Run("rejects an empty request", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		env.RegisterWorkflow(IngestWorkflow)
		env.ExecuteWorkflow(IngestWorkflow, IngestInput{})

		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
	})

	t.Run("records activity errors as failed documents", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		acts := newActivities(t)
		env.RegisterWorkflow(IngestWorkflow)
		env.RegisterActivity(acts)

		env.OnActivity(acts.ExtractDocumentActivity, mock.Anything, ExtractInput{
			Position: 0,
			Document: qa.Document{Path: "apple.pdf", Name: "Apple 10-K"},
		}).Return(nil, errors.New("worker lost"))
		env.OnActivity(acts.ExtractDocumentActivity, mock.Anything, ExtractInput{
			Position: 1,
			Document: qa.Document{Path: "tesla.pdf", Name: "Tesla 10-K"},
		}).Return(&ExtractOutput{Name: "Tesla 10-K", StagedPath: "/staging/001-tesla-10-k.json"}, nil)

		var got BuildInput
		env.OnActivity(acts.BuildIndexActivity, mock.Anything, mock.Anything).Return(
			func(_ context.Context, in BuildInput) (*qa.IngestReport, error) {
				got = in
				return &qa.IngestReport{Documents: 2, Succeeded: []string{"Tesla 10-K"}, Chunks: 1}, nil
			})

		env.ExecuteWorkflow(IngestWorkflow, IngestInput{Documents: []qa.Document{
			{Path: "apple.pdf", Name: "Apple 10-K"},
			{Path: "tesla.pdf", Name: "Tesla 10-K"},
		}})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		assert.Equal(t, []string{"/staging/001-tesla-10-k.json"}, got.Staged)
		require.Len(t, got.Failed, 1)
		assert.Equal(t, "Apple 10-K", got.Failed[0].Document)

		var result IngestResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "failed to extract Apple 10-K")
	})
}

func TestExtractDocumentActivity_Stages(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	acts := newActivities(t)
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.ExtractDocumentActivity, ExtractInput{
		Position: 3,
		Document: qa.Document{Path: "apple.pdf", Name: "Apple 10-K"},
	})
	require.NoError(t, err)

	var out ExtractOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, filepath.Join(acts.StagingDir, "003-apple-10-k.json"), out.StagedPath)
	assert.Equal(t, 1, out.Pages)
	assert.FileExists(t, out.StagedPath)
	assert.Nil(t, out.Failure)
}

func TestExtractDocumentActivity_UnreadableIsNotAnError(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	acts := newActivities(t)
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.ExtractDocumentActivity, ExtractInput{
		Document: qa.Document{Path: "missing.pdf", Name: "Missing"},
	})
	require.NoError(t, err)

	var out ExtractOutput
	require.NoError(t, val.Get(&out))
	require.NotNil(t, out.Failure)
	assert.Equal(t, "missing.pdf", out.Failure.Path)
	assert.Empty(t, out.StagedPath)
}
