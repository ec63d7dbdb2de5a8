package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig holds configuration for an OpenAI-compatible embeddings API.
type OpenAIConfig struct {
	// BaseURL of the API, e.g. https://api.openai.com/v1 or a local
	// Ollama/vLLM /v1 endpoint.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKey is optional for local servers.
	APIKey string

	// Dimension overrides the dimension detected from Model.
	Dimension int
}

// OpenAIProvider embeds text through langchaingo's OpenAI client.
type OpenAIProvider struct {
	embedder  *lcembeddings.EmbedderImpl
	dimension int
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for servers that ignore it
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = detectDimensionFromModel(cfg.Model)
	}
	return &OpenAIProvider{embedder: embedder, dimension: dim}, nil
}

// EmbedDocuments generates embeddings for chunk texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimension returns the configured embedding dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the HTTP client holds no resources.
func (p *OpenAIProvider) Close() error {
	return nil
}
