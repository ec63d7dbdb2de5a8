package index

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/filingqa/internal/index"

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Backend is an alternative nearest-neighbour engine kept in sync with the
// published snapshot, such as an embedded or remote vector database.
type Backend interface {
	// Sync replaces the backend's contents with the snapshot's records.
	// Searches running meanwhile see the previous contents in full; a
	// failed Sync leaves them in place.
	Sync(ctx context.Context, s *Snapshot) error
	// Search returns up to k candidates ordered by ascending squared L2.
	Search(ctx context.Context, query []float32, k int) ([]Candidate, error)
	Close() error
}

// Index publishes the current snapshot and serves text queries against it.
type Index struct {
	current  atomic.Pointer[Snapshot]
	embedder QueryEmbedder
	backend  Backend

	duration metric.Float64Histogram
}

// Option configures an Index.
type Option func(*Index)

// WithBackend routes searches to b instead of the in-memory flat scan.
func WithBackend(b Backend) Option {
	return func(i *Index) { i.backend = b }
}

// New creates an empty index. Search returns ErrNotBuilt until Swap.
func New(embedder QueryEmbedder, opts ...Option) *Index {
	i := &Index{embedder: embedder}
	for _, opt := range opts {
		opt(i)
	}
	i.duration, _ = otel.Meter(instrumentationName).Float64Histogram(
		"filingqa.search.duration",
		metric.WithDescription("Duration of nearest-neighbour search including query embedding"),
		metric.WithUnit("s"),
	)
	return i
}

// Current returns the published snapshot, or nil.
func (i *Index) Current() *Snapshot {
	return i.current.Load()
}

// Built reports whether a snapshot has been published.
func (i *Index) Built() bool {
	return i.current.Load() != nil
}

// Publish syncs the backend, if any, and then swaps s in.
func (i *Index) Publish(ctx context.Context, s *Snapshot) (*Snapshot, error) {
	if s == nil {
		return nil, ErrNotBuilt
	}
	if i.backend != nil {
		if err := i.backend.Sync(ctx, s); err != nil {
			return nil, fmt.Errorf("syncing search backend: %w", err)
		}
	}
	return i.Swap(s), nil
}

// Swap atomically replaces the published snapshot and returns the previous one.
func (i *Index) Swap(s *Snapshot) *Snapshot {
	return i.current.Swap(s)
}

// Search embeds text and returns the k nearest chunks.
func (i *Index) Search(ctx context.Context, text string, k int) (cands []Candidate, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "index.search",
		trace.WithAttributes(attribute.Int("k", k)))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("results", len(cands)))
		}
		span.End()
		if i.duration != nil {
			i.duration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	snap := i.current.Load()
	if snap == nil {
		return nil, ErrNotBuilt
	}

	query, err := i.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if i.backend != nil {
		return i.backend.Search(ctx, query, min(k, snap.Len()))
	}
	return snap.Search(query, k)
}

// Close releases the backend.
func (i *Index) Close() error {
	if i.backend != nil {
		return i.backend.Close()
	}
	return nil
}
