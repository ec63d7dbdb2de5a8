// Package index holds the embedded chunk corpus and answers exact
// nearest-neighbour queries over it.
//
// A Snapshot is immutable once built. Index publishes the current snapshot
// through an atomic pointer, so a rebuild swaps in a complete new snapshot
// while in-flight searches finish on the old one.
package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fyrsmithlabs/filingqa/internal/chunker"
)

var (
	// ErrNotBuilt is returned when no snapshot has been published yet.
	ErrNotBuilt = errors.New("index not built")

	// ErrDimensionMismatch indicates vectors of different lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyCorpus is returned when building from zero chunks.
	ErrEmptyCorpus = errors.New("no chunks to index")
)

// Record pairs a chunk with its embedding.
type Record struct {
	Chunk  chunker.Chunk
	Vector []float32
}

// Candidate is a search hit. Distance is squared L2; smaller is closer.
type Candidate struct {
	Chunk    chunker.Chunk
	Distance float32
}

// Meta describes how a snapshot was produced.
type Meta struct {
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
	CreatedAt      time.Time
}

// Snapshot is an immutable set of records with a common dimension.
type Snapshot struct {
	dim     int
	chunks  []chunker.Chunk
	vectors []float32 // row-major, len(chunks)*dim
	meta    Meta
}

// NewSnapshot validates and copies chunks and vectors into a snapshot.
func NewSnapshot(chunks []chunker.Chunk, vectors [][]float32, meta Meta) (*Snapshot, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", ErrDimensionMismatch)
	}
	flat := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		flat = append(flat, v...)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	return &Snapshot{
		dim:     dim,
		chunks:  slices.Clone(chunks),
		vectors: flat,
		meta:    meta,
	}, nil
}

// DocumentEmbedder embeds chunk texts.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Build embeds chunks in batches of batchSize and returns a snapshot.
func Build(ctx context.Context, embedder DocumentEmbedder, chunks []chunker.Chunk, batchSize int, meta Meta) (*Snapshot, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding chunks %d-%d: got %d vectors", start, end-1, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	return NewSnapshot(chunks, vectors, meta)
}

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.chunks) }

// Dimension returns the vector length.
func (s *Snapshot) Dimension() int { return s.dim }

// Meta returns build metadata.
func (s *Snapshot) Meta() Meta { return s.meta }

// Chunks returns a copy of the chunks in index order.
func (s *Snapshot) Chunks() []chunker.Chunk { return slices.Clone(s.chunks) }

// Vector returns the i-th vector. The slice aliases snapshot memory and
// must not be modified.
func (s *Snapshot) Vector(i int) []float32 {
	return s.vectors[i*s.dim : (i+1)*s.dim : (i+1)*s.dim]
}

// Records returns all records in index order.
func (s *Snapshot) Records() []Record {
	out := make([]Record, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = Record{Chunk: c, Vector: s.Vector(i)}
	}
	return out
}

// Search returns the k records closest to query by squared L2 distance,
// ascending. Ties keep index order. k is clamped to Len(); k <= 0 yields
// no results.
func (s *Snapshot) Search(query []float32, k int) ([]Candidate, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(query), s.dim)
	}
	k = min(k, len(s.chunks))
	if k <= 0 {
		return []Candidate{}, nil
	}

	type hit struct {
		idx  int
		dist float32
	}
	hits := make([]hit, len(s.chunks))
	for i := range s.chunks {
		hits[i] = hit{idx: i, dist: SquaredL2(query, s.Vector(i))}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		default:
			return 0
		}
	})

	out := make([]Candidate, k)
	for i := range out {
		out[i] = Candidate{Chunk: s.chunks[hits[i].idx], Distance: hits[i].dist}
	}
	return out, nil
}

// SquaredL2 returns the squared Euclidean distance of equal-length vectors.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
