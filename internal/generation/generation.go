// Package generation turns retrieved filing context into an answer with a
// language model.
//
// Generators are deterministic by default: temperature 0, a fixed token
// budget and a fixed seed where the backend honours one.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGenerationFailed wraps backend failures.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// InsufficientContext is the reply the model is instructed to give when the
// context does not contain the answer.
const InsufficientContext = "Not specified in the document."

// SystemPrompt is the fixed instruction set sent with every question.
const SystemPrompt = "You answer questions about financial filings using ONLY the provided context. " +
	"Every fact you state must come from the context. " +
	"Cite each fact with the bracketed source label that precedes it, for example [Apple 10-K, p. 282]. " +
	"Do not add information that is not in the context and do not speculate about the future. " +
	"If the context does not contain the answer, reply exactly: " + InsufficientContext

// Sampling controls decoding.
type Sampling struct {
	Temperature float64
	MaxTokens   int
	Seed        int
}

// DefaultSampling is deterministic decoding with a 300 token budget.
var DefaultSampling = Sampling{Temperature: 0, MaxTokens: 300, Seed: 42}

// Request is one grounded question.
type Request struct {
	System   string
	Context  string
	Question string
	Sampling Sampling
}

// Prompt renders the user turn: context first, then the question.
func (r Request) Prompt() string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(r.Context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(r.Question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Generator produces an answer for a grounded request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// IsInsufficient reports whether a reply is the model saying the context
// does not answer the question. Trailing punctuation and case are ignored,
// as are the common paraphrases small models produce.
func IsInsufficient(reply string) bool {
	r := strings.ToLower(strings.TrimSpace(reply))
	r = strings.TrimRight(r, ".! ")
	if r == "" {
		return true
	}
	for _, phrase := range insufficientPhrases {
		if strings.HasPrefix(r, phrase) {
			return true
		}
	}
	return false
}

var insufficientPhrases = []string{
	"not specified in the document",
	"the information is not available in the provided documents",
	"the context does not contain",
	"i don't know",
	"i do not know",
}

func failed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGenerationFailed, op, err)
}
