package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

func TestStepError(t *testing.T) {
	err := &StepError{Step: "build_index", Err: qa.ErrAllDocumentsFailed, Note: "previous index kept"}
	assert.True(t, errors.Is(err, qa.ErrAllDocumentsFailed))
	assert.Contains(t, err.Error(), "build_index failed")
	assert.Contains(t, err.Error(), "(previous index kept)")

	bare := &StepError{Step: "build_index", Err: errors.New("disk full")}
	assert.Equal(t, "build_index failed: disk full", bare.Error())
}

func TestResultError(t *testing.T) {
	assert.Equal(t, "failed to extract Apple 10-K: boom", resultError("failed to extract Apple 10-K", errors.New("boom")))
}
