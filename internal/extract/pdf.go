package extract

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts per-page plain text from PDF files.
type PDFExtractor struct{}

// Extract implements Extractor. Pages that cannot be decoded yield empty
// text rather than failing the whole document, so page numbers stay aligned
// with the source. The pdf package panics on some malformed inputs; those
// panics are returned as errors.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parsing pdf %s: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages = make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, Page{Number: i})
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	if !nonEmpty(pages) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoText)
	}
	return pages, nil
}
