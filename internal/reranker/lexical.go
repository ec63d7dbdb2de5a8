package reranker

import (
	"context"
	"strings"
	"unicode"
)

// LexicalScorer scores passages by the share of distinct query terms they
// contain. Stopwords and one-letter tokens are ignored; numbers compare with
// thousands separators removed, so "391,036" matches "391036".
type LexicalScorer struct{}

// NewLexicalScorer creates a new LexicalScorer instance.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score returns a value in [0, 1] per passage.
func (s *LexicalScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	queryTokens := tokenize(query)
	scores := make([]float64, len(passages))
	if len(queryTokens) == 0 {
		return scores, nil
	}
	for i, p := range passages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[i] = termOverlap(queryTokens, tokenize(p))
	}
	return scores, nil
}

// tokenize splits text into lowercase terms, filtering out common stopwords.
func tokenize(text string) []string {
	text = strings.ToLower(stripThousands(text))
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) > 1 && !stopwords[token] {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

// stripThousands removes commas between digits.
func stripThousands(text string) string {
	if !strings.Contains(text, ",") {
		return text
	}
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		if r == ',' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var stopwords = map[string]bool{
	"the": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "you": true, "he": true,
	"she": true, "it": true, "its": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
	"many": true, "much": true, "their": true, "our": true,
}

// termOverlap returns the fraction of distinct query tokens found in the
// document tokens.
func termOverlap(queryTokens, docTokens []string) float64 {
	docTokenSet := make(map[string]bool, len(docTokens))
	for _, token := range docTokens {
		docTokenSet[token] = true
	}

	distinct := make(map[string]bool, len(queryTokens))
	matches := 0
	for _, q := range queryTokens {
		if distinct[q] {
			continue
		}
		distinct[q] = true
		if docTokenSet[q] {
			matches++
		}
	}
	return float64(matches) / float64(len(distinct))
}
