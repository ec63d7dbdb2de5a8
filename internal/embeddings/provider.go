package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/logging"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments returns one vector per text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates the provider named by cfg.Provider, wrapped with
// metrics and the configured per-call timeout.
func NewProvider(cfg config.EmbeddingsConfig, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			BatchSize: cfg.BatchSize,
		})
	case "hugot":
		p, err = NewHugotProvider(HugotConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
		})
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			Dimension: cfg.Dimension,
		})
	case "hash":
		p = NewHashProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug(context.Background(), "embedding provider ready")
	return Instrument(p, cfg.Model, cfg.Timeout.Duration(), logger), nil
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	default:
		return 384
	}
}

var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// normalize scales v to unit L2 norm in place. Zero vectors are left alone.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// instrumented decorates a Provider with metrics and a call timeout.
type instrumented struct {
	Provider
	timeout time.Duration
	metrics *Metrics
}

// Instrument wraps p so every call is timed, counted and bounded by timeout.
// A zero timeout leaves the caller's deadline untouched.
func Instrument(p Provider, model string, timeout time.Duration, logger *logging.Logger) Provider {
	return &instrumented{
		Provider: p,
		timeout:  timeout,
		metrics:  NewMetrics(model, logger.Underlying()),
	}
}

func (i *instrumented) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, i.timeout)
}

func (i *instrumented) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := i.bound(ctx)
	defer cancel()

	start := time.Now()
	vectors, err := i.Provider.EmbedDocuments(ctx, texts)
	i.metrics.Record(ctx, "embed_documents", len(texts), time.Since(start), err)
	return vectors, err
}

func (i *instrumented) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := i.bound(ctx)
	defer cancel()

	start := time.Now()
	vector, err := i.Provider.EmbedQuery(ctx, text)
	i.metrics.Record(ctx, "embed_query", 1, time.Since(start), err)
	return vector, err
}
