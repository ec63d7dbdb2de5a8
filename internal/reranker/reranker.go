package reranker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/index"
)

const instrumentationName = "github.com/fyrsmithlabs/filingqa/internal/reranker"

// Options tunes batching of scorer calls.
type Options struct {
	// BatchSize is the number of passages per Score call. Default 4.
	BatchSize int
	// Parallelism bounds concurrent Score calls. Default 4.
	Parallelism int
	// Timeout bounds each Score call. Zero means no extra deadline.
	Timeout time.Duration
}

// Reranker scores candidates with a Scorer and keeps the best k.
type Reranker struct {
	scorer   Scorer
	opts     Options
	duration metric.Float64Histogram
}

// New creates a Reranker. A nil scorer keeps vector order.
func New(scorer Scorer, opts Options) *Reranker {
	if scorer == nil {
		scorer = IdentityScorer{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 4
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	r := &Reranker{scorer: scorer, opts: opts}
	r.duration, _ = otel.Meter(instrumentationName).Float64Histogram(
		"filingqa.rerank.duration",
		metric.WithDescription("Duration of candidate re-ranking"),
		metric.WithUnit("s"),
	)
	return r
}

// NewFromConfig builds the scorer named by cfg.Provider.
func NewFromConfig(cfg config.RerankerConfig) (*Reranker, error) {
	var scorer Scorer
	switch cfg.Provider {
	case "tei":
		s, err := NewTEIScorer(cfg.BaseURL, nil)
		if err != nil {
			return nil, err
		}
		scorer = s
	case "lexical", "":
		scorer = NewLexicalScorer()
	case "none":
		scorer = IdentityScorer{}
	default:
		return nil, fmt.Errorf("unknown reranker provider %q", cfg.Provider)
	}
	return New(scorer, Options{
		BatchSize:   cfg.BatchSize,
		Parallelism: cfg.Parallelism,
		Timeout:     cfg.Timeout.Duration(),
	}), nil
}

// Rerank scores every candidate, sorts by score descending and returns at
// most k. Equal scores keep input order. k <= 0 returns nothing.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []index.Candidate, k int) (out []Scored, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "reranker.rerank")
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("candidates", len(candidates)), attribute.Int("kept", len(out)))
		span.End()
		if r.duration != nil {
			r.duration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	if len(candidates) == 0 || k <= 0 {
		return []Scored{}, nil
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	out = make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Candidate: c, Score: scores[i], Rank: i}
	}
	slices.SortStableFunc(out, func(a, b Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return out[:min(k, len(out))], nil
}

func (r *Reranker) score(ctx context.Context, query string, candidates []index.Candidate) ([]float64, error) {
	if cs, ok := r.scorer.(CandidateScorer); ok {
		scores, err := cs.ScoreCandidates(ctx, query, candidates)
		if err != nil {
			return nil, err
		}
		if len(scores) != len(candidates) {
			return nil, fmt.Errorf("%w: got %d for %d candidates", ErrScoreCount, len(scores), len(candidates))
		}
		return scores, nil
	}

	scores := make([]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)

	for start := 0; start < len(candidates); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(candidates))
		g.Go(func() error {
			passages := make([]string, 0, end-start)
			for _, c := range candidates[start:end] {
				passages = append(passages, c.Chunk.Text)
			}

			callCtx := gctx
			if r.opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, r.opts.Timeout)
				defer cancel()
			}

			batch, err := r.scorer.Score(callCtx, query, passages)
			if err != nil {
				return fmt.Errorf("scoring candidates %d-%d: %w", start, end-1, err)
			}
			if len(batch) != len(passages) {
				return fmt.Errorf("%w: got %d for %d passages", ErrScoreCount, len(batch), len(passages))
			}
			copy(scores[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
