package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// teiMaxBatch matches the server's default --max-client-batch-size.
const teiMaxBatch = 32

// TEIConfig configures a HuggingFace text-embeddings-inference server.
type TEIConfig struct {
	BaseURL string
	// Model only sizes the vectors; a TEI instance serves one model.
	Model     string
	Dimension int
	BatchSize int
	Client    *http.Client
}

func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: negative batch size", ErrInvalidConfig)
	}
	return nil
}

// TEIProvider posts texts to the /embed route of a TEI server.
type TEIProvider struct {
	endpoint  string
	client    *http.Client
	batch     int
	dimension int
	// want is the configured width vectors are checked against; 0 skips the check.
	want int
}

func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	p := &TEIProvider{
		endpoint:  strings.TrimRight(cfg.BaseURL, "/") + "/embed",
		client:    cfg.Client,
		batch:     cfg.BatchSize,
		dimension: cfg.Dimension,
		want:      cfg.Dimension,
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.batch == 0 || p.batch > teiMaxBatch {
		p.batch = teiMaxBatch
	}
	if p.dimension == 0 {
		p.dimension = detectDimensionFromModel(cfg.Model)
	}
	return p, nil
}

type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// EmbedDocuments sends texts in batches the server accepts and returns
// the vectors in input order.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batch {
		part := texts[start:min(start+p.batch, len(texts))]
		vecs, err := p.post(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("batch at %d: %w", start, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vecs, err := p.post(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// post embeds one batch and checks the server answered with one vector
// of the expected width per input.
func (p *TEIProvider) post(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: tei status %d: %s", ErrEmbeddingFailed, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var vecs [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vecs), len(inputs))
	}
	for i, v := range vecs {
		if p.want > 0 && len(v) != p.want {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbeddingFailed, i, len(v), p.want)
		}
	}
	return vecs, nil
}

func (p *TEIProvider) Dimension() int { return p.dimension }

func (p *TEIProvider) Close() error { return nil }
