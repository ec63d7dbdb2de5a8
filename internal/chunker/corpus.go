package chunker

import (
	"fmt"

	"github.com/fyrsmithlabs/filingqa/internal/extract"
)

// Corpus accumulates chunks from many documents and drops passages whose
// normalized text was already seen, keeping the first occurrence.
type Corpus struct {
	chunker    *Chunker
	chunks     []Chunk
	seen       map[string]struct{}
	documents  map[string]struct{}
	duplicates int
}

// NewCorpus returns an empty corpus using c.
func NewCorpus(c *Chunker) *Corpus {
	return &Corpus{
		chunker:   c,
		seen:      make(map[string]struct{}),
		documents: make(map[string]struct{}),
	}
}

// Add chunks one document and returns how many new chunks it contributed.
func (c *Corpus) Add(document string, pages []extract.Page) (int, error) {
	// Chunk ids derive from the slug, so slugs must be unique too.
	slug := Slug(document)
	if _, ok := c.documents[slug]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateDocument, document)
	}
	c.documents[slug] = struct{}{}

	added := 0
	for _, ch := range c.chunker.Chunk(document, pages) {
		key := Normalize(ch.Text)
		if _, dup := c.seen[key]; dup {
			c.duplicates++
			continue
		}
		c.seen[key] = struct{}{}
		c.chunks = append(c.chunks, ch)
		added++
	}
	return added, nil
}

// Chunks returns the accumulated chunks in insertion order.
func (c *Corpus) Chunks() []Chunk {
	return c.chunks
}

// Duplicates returns how many chunks were dropped as duplicates.
func (c *Corpus) Duplicates() int {
	return c.duplicates
}

// Documents returns how many documents were added.
func (c *Corpus) Documents() int {
	return len(c.documents)
}
