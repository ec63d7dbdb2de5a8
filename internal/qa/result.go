package qa

// Status classifies how a question was handled.
type Status string

const (
	StatusAnswered    Status = "answered"
	StatusOutOfScope  Status = "out_of_scope"
	StatusNoEvidence  Status = "no_evidence"
	StatusNotIndexed  Status = "not_indexed"
	StatusUnavailable Status = "unavailable"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusAnswered, StatusOutOfScope, StatusNoEvidence, StatusNotIndexed, StatusUnavailable}

// Fixed answers for the non-answered statuses.
const (
	AnswerOutOfScope  = "This question cannot be answered based on the provided documents."
	AnswerNoEvidence  = "Not specified in the document."
	AnswerNotIndexed  = "Error: System not yet indexed. Please ingest documents first."
	AnswerUnavailable = "The answering service is temporarily unavailable. Please try again later."
)

// Result is the answer to one question. Sources are "<Document>, p. <Page>"
// strings in descending relevance, without duplicates.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Status  Status   `json:"status"`
	QueryID string   `json:"query_id,omitempty"`

	UnverifiedCitations []string `json:"unverified_citations,omitempty"`
}

func fixed(status Status, answer string) Result {
	return Result{Answer: answer, Sources: []string{}, Status: status}
}

// Document names a file to ingest.
type Document struct {
	Path string `json:"path"`
	Name string `json:"name"`
}
