//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedProvider embeds text with a local ONNX model. It is the default
// provider: no network access is needed once the model is cached.
type FastEmbedProvider struct {
	mu        sync.RWMutex
	model     *fastembed.FlagEmbedding
	name      string
	dimension int
	batchSize int
}

var fastembedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// NewFastEmbedProvider loads cfg.Model, downloading it into cfg.CacheDir on
// first use.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	cfg = cfg.withDefaults()
	model, ok := fastembedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, cfg.Model)
	}

	quiet := false
	fe, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed model %s: %w", cfg.Model, err)
	}

	return &FastEmbedProvider{
		model:     fe,
		name:      cfg.Model,
		dimension: knownModelDimensions[cfg.Model],
		batchSize: cfg.BatchSize,
	}, nil
}

// EmbedDocuments embeds chunk texts in batches of the configured size,
// checking ctx between batches so a cancelled ingest stops promptly.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+p.batchSize, len(texts))
		vectors, err := p.model.PassageEmbed(texts[start:end], p.batchSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEmbeddingFailed, p.name, err)
		}
		for _, v := range vectors {
			if err := p.checkDimension(v); err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(out), len(texts))
	}
	return out, nil
}

// EmbedQuery embeds a question with the model's query prefix.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
	}

	v, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEmbeddingFailed, p.name, err)
	}
	return v, p.checkDimension(v)
}

func (p *FastEmbedProvider) checkDimension(v []float32) error {
	if p.dimension != 0 && len(v) != p.dimension {
		return fmt.Errorf("%w: %s returned %d dimensions, want %d", ErrEmbeddingFailed, p.name, len(v), p.dimension)
	}
	return nil
}

func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close releases the ONNX session. Later calls fail.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}
