package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashProvider embeds text by hashing lowercased word tokens and their
// bigrams into a fixed number of buckets, then L2-normalizing. Texts that
// share words land close together, which is enough for offline runs and
// tests without a model download.
type HashProvider struct {
	dimension int
}

// NewHashProvider returns a hashing provider. dimension <= 0 means 384.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashProvider{dimension: dimension}
}

// EmbedDocuments generates embeddings for chunk texts.
func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(t)
	}
	return out, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(text), nil
}

func (p *HashProvider) vector(text string) []float32 {
	v := make([]float32, p.dimension)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		p.add(v, tok, 1)
		if i > 0 {
			p.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return normalize(v)
}

func (p *HashProvider) add(v []float32, token string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

// Dimension returns the configured dimension.
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *HashProvider) Close() error {
	return nil
}

// Tokenize lowercases text and splits it into letter/digit runs. Thousands
// separators inside numbers are dropped, so "391,036" yields "391036".
func Tokenize(text string) []string {
	var (
		tokens []string
		b      strings.Builder
	)
	runes := []rune(text)
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == ',' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			// thousands separator
		default:
			flush()
		}
	}
	flush()
	return tokens
}
