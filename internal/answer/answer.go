// Package answer assembles a grounded answer from re-ranked passages: it
// builds the bounded context, asks the generator, derives the sources from
// the passages actually sent, and checks the citations the model wrote.
package answer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/chunker"
	"github.com/fyrsmithlabs/filingqa/internal/generation"
	"github.com/fyrsmithlabs/filingqa/internal/logging"
	"github.com/fyrsmithlabs/filingqa/internal/reranker"
)

const (
	// NotSpecified is the answer when the passages do not contain one.
	NotSpecified = generation.InsufficientContext

	// DefaultMaxContextChars bounds the context sent to the generator.
	DefaultMaxContextChars = 2000

	// Separator joins context blocks.
	Separator = "\n\n---\n\n"
)

// Answer is the assembled result.
type Answer struct {
	Text    string
	Sources []string

	// UnverifiedCitations are citations in Text that match no passage sent
	// to the generator. They are never returned as sources.
	UnverifiedCitations []string

	// Used is the number of passages that fit in the context.
	Used int
}

// Options configures an Assembler.
type Options struct {
	MaxContextChars int
	Sampling        generation.Sampling
	System          string
}

// Assembler turns passages into an Answer.
type Assembler struct {
	gen    generation.Generator
	opts   Options
	logger *logging.Logger
}

// New creates an Assembler. A zero MaxContextChars means
// DefaultMaxContextChars; a zero Sampling means generation.DefaultSampling.
func New(gen generation.Generator, opts Options, logger *logging.Logger) *Assembler {
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	if opts.Sampling == (generation.Sampling{}) {
		opts.Sampling = generation.DefaultSampling
	}
	if opts.System == "" {
		opts.System = generation.SystemPrompt
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Assembler{gen: gen, opts: opts, logger: logger.Named("answer")}
}

// Assemble answers query from scored, which must be in relevance order.
// An empty slice yields NotSpecified without calling the generator.
// Generator errors are returned unchanged for the caller to classify.
func (a *Assembler) Assemble(ctx context.Context, query string, scored []reranker.Scored) (Answer, error) {
	ctx, span := otel.Tracer("github.com/fyrsmithlabs/filingqa/internal/answer").Start(ctx, "answer.assemble")
	defer span.End()

	if len(scored) == 0 {
		return Answer{Text: NotSpecified}, nil
	}

	text, used := BuildContext(scored, a.opts.MaxContextChars)
	span.SetAttributes(
		attribute.Int("passages.used", len(used)),
		attribute.Int("context.chars", utf8.RuneCountInString(text)),
	)

	reply, err := a.gen.Generate(ctx, generation.Request{
		System:   a.opts.System,
		Context:  text,
		Question: query,
		Sampling: a.opts.Sampling,
	})
	if err != nil {
		return Answer{}, err
	}

	if generation.IsInsufficient(reply) {
		return Answer{Text: NotSpecified, Used: len(used)}, nil
	}

	ans := Answer{
		Text:    reply,
		Sources: Sources(used),
		Used:    len(used),
	}
	ans.UnverifiedCitations = Unverified(reply, used)
	if len(ans.UnverifiedCitations) > 0 {
		a.logger.Warn(ctx, "answer cites passages that were not provided",
			zap.Strings("citations", ans.UnverifiedCitations))
	}
	return ans, nil
}

// Label is the bracketed provenance line that precedes a passage.
func Label(c chunker.Chunk) string {
	return "[" + c.Citation() + "]"
}

// BuildContext renders passages as "[Doc, p. N]\n<text>" blocks joined by
// Separator, stopping before the first block that would exceed maxChars.
// The first block is always used, truncated to fit.
func BuildContext(scored []reranker.Scored, maxChars int) (string, []chunker.Chunk) {
	var (
		b     strings.Builder
		used  []chunker.Chunk
		total int
	)
	sepLen := utf8.RuneCountInString(Separator)

	for _, s := range scored {
		block := Label(s.Chunk) + "\n" + strings.TrimSpace(s.Chunk.Text)
		n := utf8.RuneCountInString(block)

		if len(used) == 0 {
			if n > maxChars {
				block = truncate(block, maxChars)
				n = maxChars
			}
		} else {
			if total+sepLen+n > maxChars {
				break
			}
			b.WriteString(Separator)
			total += sepLen
		}

		b.WriteString(block)
		total += n
		used = append(used, s.Chunk)
	}
	return b.String(), used
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Sources formats the distinct (document, page) pairs of chunks in order.
func Sources(chunks []chunker.Chunk) []string {
	type key struct {
		doc  string
		page int
	}
	seen := make(map[key]bool, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		k := key{c.Document, c.Page}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c.Citation())
	}
	return out
}

// citationPattern matches "[Doc, p. N]", "[Doc, page N]" and "[Doc - Page N]".
var citationPattern = regexp.MustCompile(`\[([^\[\]]+?)\s*(?:,|-)\s*(?i:p\.|page)\s*(\d+)\]`)

// Citation is a reference found in generated text.
type Citation struct {
	Document string
	Page     int
}

func (c Citation) String() string {
	return fmt.Sprintf("%s, p. %d", c.Document, c.Page)
}

// Citations extracts the bracketed citations in text, in order of appearance.
func Citations(text string) []Citation {
	var out []Citation
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		page, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		out = append(out, Citation{Document: strings.TrimSpace(m[1]), Page: page})
	}
	return out
}

// Unverified returns the distinct citations in text that do not match any
// of the used chunks. Document names compare case-insensitively.
func Unverified(text string, used []chunker.Chunk) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range Citations(text) {
		if matches(c, used) {
			continue
		}
		s := c.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func matches(c Citation, used []chunker.Chunk) bool {
	for _, u := range used {
		if u.Page == c.Page && strings.EqualFold(u.Document, c.Document) {
			return true
		}
	}
	return false
}
