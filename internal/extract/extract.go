// Package extract turns corpus files into page-tagged text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for files no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrNoText is returned when a document yields no text on any page.
var ErrNoText = errors.New("document contains no extractable text")

// Page is the text of one page. Number starts at 1.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Extractor reads a document into ordered pages.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Page, error)
}

// Auto dispatches on file extension: .pdf to PDF, .txt/.md to Text.
type Auto struct {
	PDF  Extractor
	Text Extractor
}

// NewAuto returns an Auto extractor with the default implementations.
func NewAuto() *Auto {
	return &Auto{PDF: &PDFExtractor{}, Text: &TextExtractor{}}
}

// Extract implements Extractor.
func (a *Auto) Extract(ctx context.Context, path string) ([]Page, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return a.PDF.Extract(ctx, path)
	case ".txt", ".text", ".md":
		return a.Text.Extract(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// nonEmpty reports whether any page carries non-whitespace text.
func nonEmpty(pages []Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
