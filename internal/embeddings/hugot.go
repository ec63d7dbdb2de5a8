package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// HugotConfig holds configuration for the hugot provider.
type HugotConfig struct {
	// Model is a Hugging Face model id with an ONNX export,
	// e.g. sentence-transformers/all-MiniLM-L6-v2.
	Model string

	// CacheDir is where models are downloaded to.
	CacheDir string

	// OnnxFilePath selects the ONNX file inside the model repository.
	OnnxFilePath string
}

// HugotProvider runs a feature-extraction pipeline on hugot's pure Go
// backend, so it works in binaries built without cgo.
type HugotProvider struct {
	mu        sync.Mutex
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	dimension int
}

// NewHugotProvider downloads the model if needed and starts a session.
func NewHugotProvider(cfg HugotConfig) (*HugotProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "local_cache"
	}
	if cfg.OnnxFilePath == "" {
		cfg.OnnxFilePath = "onnx/model.onnx"
	}

	modelPath, err := prepareHugotModel(cfg)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("creating hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "filingqa-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("creating feature extraction pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("creating feature extraction pipeline: %w", err)
	}

	return &HugotProvider{
		session:   session,
		pipeline:  pipeline,
		dimension: detectDimensionFromModel(cfg.Model),
	}, nil
}

// prepareHugotModel returns the local path of the model, downloading it on
// first use.
func prepareHugotModel(cfg HugotConfig) (string, error) {
	modelPath := filepath.Join(cfg.CacheDir, strings.ReplaceAll(cfg.Model, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking model directory: %w", err)
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = cfg.OnnxFilePath
	downloaded, err := hugot.DownloadModel(cfg.Model, cfg.CacheDir, opts)
	if err != nil {
		return "", fmt.Errorf("downloading model %s: %w", cfg.Model, err)
	}
	return downloaded, nil
}

// EmbedDocuments generates embeddings for chunk texts.
func (p *HugotProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return p.run(ctx, texts)
}

// EmbedQuery generates an embedding for a single query.
func (p *HugotProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.run(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *HugotProvider) run(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipeline == nil {
		return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
	}

	out, err := p.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(out.Embeddings), len(texts))
	}
	for _, v := range out.Embeddings {
		normalize(v)
	}
	return out.Embeddings, nil
}

// Dimension returns the embedding dimension for the current model.
func (p *HugotProvider) Dimension() int {
	return p.dimension
}

// Close destroys the hugot session.
func (p *HugotProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pipeline = nil
	if p.session == nil {
		return nil
	}
	err := p.session.Destroy()
	p.session = nil
	return err
}
