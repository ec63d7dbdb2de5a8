package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TEIScorer calls the /rerank endpoint of a text-embeddings-inference
// server hosting a cross-encoder such as cross-encoder/ms-marco-MiniLM-L-6-v2.
type TEIScorer struct {
	baseURL string
	client  *http.Client
}

// NewTEIScorer creates a scorer for the server at baseURL. A nil client
// means http.DefaultClient.
func NewTEIScorer(baseURL string, client *http.Client) (*TEIScorer, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("tei reranker: base URL required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TEIScorer{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

type teiRerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type teiRerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns the cross-encoder score of each passage, in input order.
func (s *TEIScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(teiRerankRequest{Query: query, Texts: passages, RawScores: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoringFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrScoringFailed, resp.StatusCode, string(msg))
	}

	var results []teiRerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrScoringFailed, err)
	}
	if len(results) != len(passages) {
		return nil, fmt.Errorf("%w: got %d for %d passages", ErrScoreCount, len(results), len(passages))
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(passages) || seen[r.Index] {
			return nil, fmt.Errorf("%w: invalid index %d", ErrScoringFailed, r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	return scores, nil
}
