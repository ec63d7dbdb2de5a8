// Package reranker reorders retrieval candidates with a second-stage
// relevance scorer, typically a cross-encoder.
package reranker

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/filingqa/internal/index"
)

var (
	// ErrScoreCount is returned when a scorer returns a different number of
	// scores than passages.
	ErrScoreCount = errors.New("scorer returned wrong number of scores")

	// ErrScoringFailed wraps scorer transport failures.
	ErrScoringFailed = errors.New("rerank scoring failed")
)

// Scorer assigns a relevance score to each (query, passage) pair. Higher is
// more relevant. Scores are only compared within one call's candidates.
type Scorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// CandidateScorer is implemented by scorers that need more than passage
// text, such as the vector distance.
type CandidateScorer interface {
	ScoreCandidates(ctx context.Context, query string, candidates []index.Candidate) ([]float64, error)
}

// Scored is a candidate with its rerank score. Rank is the candidate's
// position in the input, which was ascending distance.
type Scored struct {
	index.Candidate
	Score float64
	Rank  int
}

// IdentityScorer keeps vector order: each candidate scores its negated
// distance.
type IdentityScorer struct{}

// Score returns zero for every passage; distances are not available here.
func (IdentityScorer) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	return make([]float64, len(passages)), nil
}

// ScoreCandidates returns -distance for each candidate.
func (IdentityScorer) ScoreCandidates(_ context.Context, _ string, candidates []index.Candidate) ([]float64, error) {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = -float64(c.Distance)
	}
	return out, nil
}
