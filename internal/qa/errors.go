package qa

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/filingqa/internal/index"
)

var (
	// ErrIndexNotBuilt is returned when no index has been ingested or loaded.
	ErrIndexNotBuilt = index.ErrNotBuilt

	// ErrNoEvidenceFound means retrieval produced nothing usable.
	ErrNoEvidenceFound = errors.New("no evidence found")

	// ErrNoDocuments is returned by Ingest when called with an empty list.
	ErrNoDocuments = errors.New("no documents to ingest")

	// ErrAllDocumentsFailed is returned when no document could be ingested.
	// The previously published index stays in place.
	ErrAllDocumentsFailed = errors.New("every document failed to ingest")
)

// IngestionError records why one document was skipped.
type IngestionError struct {
	Document string
	Path     string
	Err      error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingesting %s (%s): %v", e.Document, e.Path, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// EmbeddingServiceError wraps a failure of the embedding model.
type EmbeddingServiceError struct {
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return "embedding service: " + e.Err.Error()
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// GenerationServiceError wraps a failure of the answer generator.
type GenerationServiceError struct {
	Err error
}

func (e *GenerationServiceError) Error() string {
	return "generation service: " + e.Err.Error()
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// retryable reports whether err came from a remote model and may succeed
// on a second attempt.
func retryable(err error) bool {
	var emb *EmbeddingServiceError
	var gen *GenerationServiceError
	return errors.As(err, &emb) || errors.As(err, &gen)
}
