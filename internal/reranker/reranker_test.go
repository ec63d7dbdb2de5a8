package reranker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/filingqa/internal/chunker"
	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/index"
)

func candidates(texts ...string) []index.Candidate {
	out := make([]index.Candidate, len(texts))
	for i, t := range texts {
		out[i] = index.Candidate{
			Chunk:    chunker.Chunk{ID: fmt.Sprintf("c%d", i), Text: t, Document: "Doc", Page: i + 1},
			Distance: float32(i),
		}
	}
	return out
}

type fixedScorer struct {
	scores map[string]float64
	calls  atomic.Int32
}

func (f *fixedScorer) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	f.calls.Add(1)
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = f.scores[p]
	}
	return out, nil
}

func TestRerank_SortsTruncatesAndKeepsTies(t *testing.T) {
	s := &fixedScorer{scores: map[string]float64{"a": 0.1, "b": 0.9, "c": 0.5, "d": 0.9, "e": 0.2}}
	r := New(s, Options{BatchSize: 2, Parallelism: 3})

	got, err := r.Rerank(context.Background(), "q", candidates("a", "b", "c", "d", "e"), 3)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].Chunk.ID)
	assert.Equal(t, "c3", got[1].Chunk.ID, "tie keeps input (distance) order")
	assert.Equal(t, "c2", got[2].Chunk.ID)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, int32(3), s.calls.Load(), "5 candidates in batches of 2")
}

func TestRerank_OutputIsSubsetOfInput(t *testing.T) {
	in := candidates("revenue total", "risk factors", "net sales", "leases")
	r := New(NewLexicalScorer(), Options{})

	got, err := r.Rerank(context.Background(), "total revenue", in, 10)
	require.NoError(t, err)
	assert.Len(t, got, len(in))

	ids := map[string]bool{}
	for _, c := range in {
		ids[c.Chunk.ID] = true
	}
	for _, g := range got {
		assert.True(t, ids[g.Chunk.ID])
	}
	assert.Equal(t, "c0", got[0].Chunk.ID)
}

func TestRerank_EmptyAndZeroK(t *testing.T) {
	r := New(nil, Options{})

	got, err := r.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Rerank(context.Background(), "q", candidates("a"), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRerank_IdentityKeepsDistanceOrder(t *testing.T) {
	r := New(IdentityScorer{}, Options{})
	got, err := r.Rerank(context.Background(), "q", candidates("a", "b", "c"), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c0", got[0].Chunk.ID)
	assert.Equal(t, "c1", got[1].Chunk.ID)
	assert.Equal(t, -1.0, got[1].Score)
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, string, []string) ([]float64, error) {
	return nil, errors.New("boom")
}

type shortScorer struct{}

func (shortScorer) Score(context.Context, string, []string) ([]float64, error) {
	return []float64{1}, nil
}

func TestRerank_ScorerErrors(t *testing.T) {
	_, err := New(failingScorer{}, Options{}).Rerank(context.Background(), "q", candidates("a", "b"), 2)
	assert.ErrorContains(t, err, "boom")

	_, err = New(shortScorer{}, Options{BatchSize: 4}).Rerank(context.Background(), "q", candidates("a", "b"), 2)
	assert.ErrorIs(t, err, ErrScoreCount)
}

func TestLexicalScorer(t *testing.T) {
	s := NewLexicalScorer()
	scores, err := s.Score(context.Background(), "What was the total revenue of 391,036?", []string{
		"Total revenue was $391,036 million",
		"Total net sales",
		"Nothing relevant",
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.InDelta(t, 1.0/3, scores[1], 1e-9)
	assert.Zero(t, scores[2])

	scores, err = s.Score(context.Background(), "the of", []string{"the of"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, scores)
}

func TestTEIScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		var req teiRerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "revenue", req.Query)
		// TEI returns results sorted by score, not input order
		_ = json.NewEncoder(w).Encode([]teiRerankResult{{Index: 1, Score: 4.2}, {Index: 0, Score: -3.1}})
	}))
	defer srv.Close()

	s, err := NewTEIScorer(srv.URL+"/", nil)
	require.NoError(t, err)

	scores, err := s.Score(context.Background(), "revenue", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{-3.1, 4.2}, scores)
}

func TestTEIScorer_BadIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]teiRerankResult{{Index: 0, Score: 1}, {Index: 0, Score: 2}})
	}))
	defer srv.Close()

	s, err := NewTEIScorer(srv.URL, nil)
	require.NoError(t, err)
	_, err = s.Score(context.Background(), "q", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrScoringFailed)
}

func TestNewFromConfig(t *testing.T) {
	for _, p := range []string{"tei", "lexical", "none"} {
		r, err := NewFromConfig(config.RerankerConfig{Provider: p, BaseURL: "http://localhost:8081"})
		require.NoError(t, err, p)
		assert.NotNil(t, r)
	}
	_, err := NewFromConfig(config.RerankerConfig{Provider: "colbert"})
	assert.Error(t, err)
}
