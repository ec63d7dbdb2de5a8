//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned by every FastEmbedProvider method in
// binaries built with CGO_ENABLED=0.
var ErrFastEmbedNotAvailable = errors.New("fastembed: this binary was built without cgo; set embeddings.provider to hugot, tei, openai or hash")

// FastEmbedProvider is unavailable without cgo.
type FastEmbedProvider struct{}

func NewFastEmbedProvider(FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (*FastEmbedProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (*FastEmbedProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (*FastEmbedProvider) Dimension() int { return 0 }

func (*FastEmbedProvider) Close() error { return nil }
