package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/filingqa/internal/config"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/filingqa/internal/generation"

	defaultRatePerSecond = 2
	defaultBurst         = 1
)

// LangchainConfig configures a LangchainGenerator.
type LangchainConfig struct {
	Model string

	// Timeout bounds each Generate call. Zero leaves the caller's deadline.
	Timeout time.Duration

	// RatePerSecond limits outgoing requests. Zero uses the default.
	RatePerSecond float64
}

// LangchainGenerator generates answers through any langchaingo chat model.
type LangchainGenerator struct {
	llm      llms.Model
	model    string
	timeout  time.Duration
	limiter  *rate.Limiter
	duration metric.Float64Histogram
}

// NewLangchainGenerator wraps an existing langchaingo model.
func NewLangchainGenerator(llm llms.Model, cfg LangchainConfig) *LangchainGenerator {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = defaultRatePerSecond
	}
	duration, _ := otel.Meter(instrumentationName).Float64Histogram(
		"filingqa.generation.duration",
		metric.WithDescription("Duration of answer generation calls"),
		metric.WithUnit("s"),
	)
	return &LangchainGenerator{
		llm:      llm,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(rate.Limit(rps), defaultBurst),
		duration: duration,
	}
}

// New builds the generator named by cfg.Provider: "openai" for any
// OpenAI-compatible endpoint (including Ollama's /v1), "ollama" for the
// native Ollama API, or "extractive" for the offline generator.
func New(cfg config.GenerationConfig) (Generator, error) {
	lcfg := LangchainConfig{
		Model:         cfg.Model,
		Timeout:       cfg.Timeout.Duration(),
		RatePerSecond: cfg.RatePerSecond,
	}

	switch cfg.Provider {
	case "openai", "":
		token := cfg.APIKey.Value()
		if token == "" {
			// the client refuses to start without a token; local servers ignore it
			token = "unused"
		}
		llm, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithModel(cfg.Model),
			openai.WithToken(token),
		)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		return NewLangchainGenerator(llm, lcfg), nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		return NewLangchainGenerator(llm, lcfg), nil
	case "extractive":
		return NewExtractive(), nil
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// Generate sends the system prompt and the rendered context+question to the
// model and returns the trimmed reply.
func (g *LangchainGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "generation.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", g.model),
		attribute.Int("context.chars", len(req.Context)),
	)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter")
		return "", failed("rate limiter", err)
	}

	system := req.System
	if system == "" {
		system = SystemPrompt
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt()),
	}
	opts := []llms.CallOption{
		llms.WithTemperature(req.Sampling.Temperature),
		llms.WithSeed(req.Sampling.Seed),
	}
	if req.Sampling.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.Sampling.MaxTokens))
	}

	start := time.Now()
	resp, err := g.llm.GenerateContent(ctx, messages, opts...)
	g.duration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("model", g.model), attribute.Bool("error", err != nil)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content")
		return "", failed("generate content", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
