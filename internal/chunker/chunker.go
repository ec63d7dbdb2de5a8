// Package chunker splits page-tagged document text into overlapping,
// fixed-size passages carrying document, page and offset provenance.
package chunker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/filingqa/internal/extract"
)

const (
	// DefaultSize is the default window length in characters.
	DefaultSize = 500
	// DefaultOverlap is the default number of characters shared by
	// consecutive windows of the same page.
	DefaultOverlap = 50
)

var (
	// ErrInvalidWindow is returned for a window/overlap pair that cannot advance.
	ErrInvalidWindow = errors.New("chunk overlap must be non-negative and smaller than chunk size")

	// ErrDuplicateDocument is returned when a corpus already holds a document
	// with the same name.
	ErrDuplicateDocument = errors.New("document already chunked")
)

// Chunk is a bounded passage of one page. Offset and the length limit are
// measured in characters (runes), not bytes.
type Chunk struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Document string `json:"document"`
	Page     int    `json:"page"`
	Offset   int    `json:"offset"`
}

// Citation renders the chunk's provenance as "Document, p. N".
func (c Chunk) Citation() string {
	return c.Document + ", p. " + strconv.Itoa(c.Page)
}

// Options configures a Chunker.
type Options struct {
	Size    int
	Overlap int
	// MinChars drops windows whose trimmed text is shorter. Zero keeps all
	// non-blank windows.
	MinChars int
}

// Chunker slides a fixed window over each page.
type Chunker struct {
	size     int
	overlap  int
	minChars int
}

// New validates opts and returns a Chunker.
func New(opts Options) (*Chunker, error) {
	if opts.Size <= 0 || opts.Overlap < 0 || opts.Overlap >= opts.Size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, opts.Size, opts.Overlap)
	}
	return &Chunker{size: opts.Size, overlap: opts.Overlap, minChars: opts.MinChars}, nil
}

// Size returns the window length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the window overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits one document. Windows start at 0 and advance by
// size-overlap; the last window of a page ends at the page end. Windows
// never cross a page boundary and blank windows are dropped. IDs are
// "<document-slug>_<n>" numbered in emission order.
func (c *Chunker) Chunk(document string, pages []extract.Page) []Chunk {
	slug := Slug(document)
	step := c.size - c.overlap

	var out []Chunk
	for _, page := range pages {
		runes := []rune(page.Text)
		n := len(runes)

		for start := 0; start < n; start += step {
			end := min(start+c.size, n)
			text := string(runes[start:end])

			if keep(text, c.minChars) {
				out = append(out, Chunk{
					ID:       slug + "_" + strconv.Itoa(len(out)),
					Text:     text,
					Document: document,
					Page:     page.Number,
					Offset:   start,
				})
			}

			if end == n {
				break
			}
		}
	}
	return out
}

func keep(text string, minChars int) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	return len([]rune(trimmed)) >= minChars
}

// Normalize returns the dedup key of a passage: whitespace runs collapsed
// and case folded.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Slug lowercases name and replaces every run of non-alphanumerics with a
// single hyphen.
func Slug(name string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
