package generation

import (
	"context"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/filingqa/internal/embeddings"
)

// Extractive answers by quoting the context sentence that shares the most
// terms with the question, followed by the label of the block it came from.
// It needs no model and is fully deterministic, which makes it the offline
// generator for development and tests.
type Extractive struct{}

// NewExtractive returns the offline generator.
func NewExtractive() *Extractive {
	return &Extractive{}
}

// Generate implements Generator.
func (e *Extractive) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", failed("extractive", err)
	}

	query := terms(req.Question)
	if len(query) == 0 {
		return InsufficientContext, nil
	}

	var (
		best      string
		bestLabel string
		bestScore int
	)
	for _, block := range strings.Split(req.Context, blockSeparator) {
		label, body := splitLabel(block)
		for _, sentence := range splitSentences(body) {
			score := 0
			for t := range terms(sentence) {
				if query[t] {
					score++
				}
			}
			if score > bestScore {
				best, bestLabel, bestScore = sentence, label, score
			}
		}
	}

	if bestScore == 0 {
		return InsufficientContext, nil
	}
	if bestLabel == "" {
		return best, nil
	}
	return best + " " + bestLabel, nil
}

const blockSeparator = "\n\n---\n\n"

// splitLabel separates a leading "[Doc, p. N]" line from the block body.
func splitLabel(block string) (string, string) {
	block = strings.TrimSpace(block)
	if !strings.HasPrefix(block, "[") {
		return "", block
	}
	line, rest, found := strings.Cut(block, "\n")
	if !found || !strings.HasSuffix(line, "]") {
		return "", block
	}
	return line, rest
}

// splitSentences breaks text after '.', '!' or '?' when followed by
// whitespace, so decimals and abbreviations like "p.282" stay intact.
func splitSentences(text string) []string {
	var (
		out   []string
		runes = []rune(text)
		start int
	)
	emit := func(end int) {
		s := strings.Join(strings.Fields(string(runes[start:end])), " ")
		if s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range runes {
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			emit(i)
			continue
		}
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			emit(i + 1)
		}
	}
	emit(len(runes))
	return out
}

func terms(text string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range embeddings.Tokenize(text) {
		if len(t) > 1 && !questionWords[t] {
			out[t] = true
		}
	}
	return out
}

var questionWords = map[string]bool{
	"what": true, "which": true, "who": true, "how": true, "when": true, "where": true,
	"was": true, "were": true, "is": true, "are": true, "did": true, "does": true, "do": true,
	"the": true, "an": true, "of": true, "for": true, "in": true, "on": true, "to": true,
	"and": true, "or": true, "by": true, "as": true, "at": true, "its": true, "it": true,
	"many": true, "much": true, "any": true, "this": true, "that": true, "from": true,
}
