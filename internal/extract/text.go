package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// pageBreak separates pages in plain-text corpus files, as emitted by
// pdftotext.
const pageBreak = "\f"

// TextExtractor reads plain-text files, splitting pages on form feeds.
// A file without form feeds is a single page.
type TextExtractor struct{}

// Extract implements Extractor.
func (e *TextExtractor) Extract(_ context.Context, path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	pages := SplitPages(string(data))
	if !nonEmpty(pages) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoText)
	}
	return pages, nil
}

// SplitPages splits text on form feeds into numbered pages.
func SplitPages(text string) []Page {
	parts := strings.Split(text, pageBreak)
	// pdftotext terminates the last page with a form feed too.
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}

	pages := make([]Page, len(parts))
	for i, p := range parts {
		pages[i] = Page{Number: i + 1, Text: p}
	}
	return pages
}
