package workflows

import "fmt"

// Application error types for failures Temporal must not retry.
const (
	ErrTypeNoDocuments        = "NoDocuments"
	ErrTypeAllDocumentsFailed = "AllDocumentsFailed"
	ErrTypeStaging            = "StagingFailed"
)

// StepError fails an ingest run at a named step. A failed extraction is
// not a StepError: the document is reported and the run goes on.
type StepError struct {
	Step string
	Err  error
	// Note says what state the run left behind, e.g. "previous index kept".
	Note string
}

func (e *StepError) Error() string {
	msg := e.Step + " failed: " + e.Err.Error()
	if e.Note != "" {
		msg += " (" + e.Note + ")"
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// resultError is the line recorded in IngestResult.Errors.
func resultError(what string, err error) string {
	return fmt.Sprintf("%s: %v", what, err)
}
