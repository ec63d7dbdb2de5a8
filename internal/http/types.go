package http

import (
	"github.com/fyrsmithlabs/filingqa/internal/evaluation"
	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

// HealthResponse is the response body for GET /health and GET /ready.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// IngestRequest is the request body for POST /api/v1/ingest. An empty
// document list ingests the configured corpus.
type IngestRequest struct {
	Documents []qa.Document `json:"documents"`
}

// IngestResponse is the response body for POST /api/v1/ingest.
type IngestResponse struct {
	Report qa.IngestReport `json:"report"`
	Error  string          `json:"error,omitempty"`
}

// EvaluateRequest is the request body for POST /api/v1/evaluate. An empty
// question list runs the built-in regression set.
type EvaluateRequest struct {
	Questions []evaluation.Question `json:"questions"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}
