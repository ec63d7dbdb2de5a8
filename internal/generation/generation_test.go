package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/telemetry"
)

type fakeLLM struct {
	reply string
	err   error
	delay time.Duration

	messages []llms.MessageContent
	options  llms.CallOptions
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.options)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func textOf(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	require.Len(t, m.Parts, 1)
	part, ok := m.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func testRequest() Request {
	return Request{
		Context:  "[Apple 10-K, p. 282]\nTotal revenue was $391,036 million.",
		Question: "What was Apple's total revenue?",
		Sampling: DefaultSampling,
	}
}

func TestLangchainGenerator_Generate(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	tel.Install(t)

	llm := &fakeLLM{reply: "  Total revenue was $391,036 million [Apple 10-K, p. 282].\n"}
	g := NewLangchainGenerator(llm, LangchainConfig{Model: "phi3:mini", RatePerSecond: 100})

	got, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Total revenue was $391,036 million [Apple 10-K, p. 282].", got)

	require.Len(t, llm.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, llm.messages[0].Role)
	assert.Equal(t, SystemPrompt, textOf(t, llm.messages[0]))
	assert.Equal(t, llms.ChatMessageTypeHuman, llm.messages[1].Role)
	prompt := textOf(t, llm.messages[1])
	assert.True(t, strings.HasPrefix(prompt, "Context:\n[Apple 10-K, p. 282]"))
	assert.Contains(t, prompt, "Question: What was Apple's total revenue?")

	assert.Equal(t, 0.0, llm.options.Temperature)
	assert.Equal(t, 300, llm.options.MaxTokens)
	assert.Equal(t, 42, llm.options.Seed)

	tel.AssertSpanExists(t, "generation.generate")
	assert.True(t, tel.HasMetric(t, "filingqa.generation.duration"))
}

func TestLangchainGenerator_CustomSystemPrompt(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	g := NewLangchainGenerator(llm, LangchainConfig{RatePerSecond: 100})

	req := testRequest()
	req.System = "be brief"
	_, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "be brief", textOf(t, llm.messages[0]))
}

func TestLangchainGenerator_Errors(t *testing.T) {
	t.Run("backend error", func(t *testing.T) {
		boom := errors.New("connection refused")
		g := NewLangchainGenerator(&fakeLLM{err: boom}, LangchainConfig{RatePerSecond: 100})

		_, err := g.Generate(context.Background(), testRequest())
		assert.ErrorIs(t, err, ErrGenerationFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty reply", func(t *testing.T) {
		g := NewLangchainGenerator(&fakeLLM{reply: "   "}, LangchainConfig{RatePerSecond: 100})

		_, err := g.Generate(context.Background(), testRequest())
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("timeout", func(t *testing.T) {
		g := NewLangchainGenerator(&fakeLLM{reply: "late", delay: time.Second}, LangchainConfig{
			Timeout:       20 * time.Millisecond,
			RatePerSecond: 100,
		})

		_, err := g.Generate(context.Background(), testRequest())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNew_OpenAICompatibleServer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "phi3:mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Total revenue was $391,036 million [Apple 10-K, p. 282]."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 12, "total_tokens": 22}
		}`))
	}))
	defer srv.Close()

	cfg := config.Default().Generation
	cfg.BaseURL = srv.URL
	g, err := New(cfg)
	require.NoError(t, err)

	got, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Contains(t, got, "391,036")
	assert.Equal(t, "phi3:mini", body["model"])
}

func TestNew_Providers(t *testing.T) {
	cfg := config.Default().Generation

	cfg.Provider = "extractive"
	g, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Extractive{}, g)

	cfg.Provider = "ollama"
	g, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &LangchainGenerator{}, g)

	cfg.Provider = "bard"
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExtractive_Generate(t *testing.T) {
	ctx := context.Background()
	g := NewExtractive()

	req := Request{
		Context: "[Tesla 10-K, p. 51]\nWe produced 1,845,985 vehicles. Deliveries rose.\n\n---\n\n" +
			"[Apple 10-K, p. 282]\nNet sales by category are shown below. Total revenue was $391,036 million.",
		Question: "What was Apple's total revenue?",
	}
	got, err := g.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Total revenue was $391,036 million. [Apple 10-K, p. 282]", got)

	req.Question = "Who designs the headquarters garden?"
	got, err = g.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, InsufficientContext, got)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = g.Generate(cancelled, req)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Revenue was $391.0 billion. Margins grew!  See p.282 for detail\n\nNew paragraph")
	assert.Equal(t, []string{
		"Revenue was $391.0 billion.",
		"Margins grew!",
		"See p.282 for detail",
		"New paragraph",
	}, got)
}

func TestIsInsufficient(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"Not specified in the document.", true},
		{"not specified in the document", true},
		{"The information is not available in the provided documents.", true},
		{"", true},
		{"Total revenue was $391,036 million.", false},
		{"The document states revenue grew; it is not specified in the document why.", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsInsufficient(tt.reply), tt.reply)
	}
}
