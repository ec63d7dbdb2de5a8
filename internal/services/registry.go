package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/answer"
	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/embeddings"
	"github.com/fyrsmithlabs/filingqa/internal/events"
	"github.com/fyrsmithlabs/filingqa/internal/extract"
	"github.com/fyrsmithlabs/filingqa/internal/generation"
	"github.com/fyrsmithlabs/filingqa/internal/index"
	"github.com/fyrsmithlabs/filingqa/internal/logging"
	"github.com/fyrsmithlabs/filingqa/internal/qa"
	"github.com/fyrsmithlabs/filingqa/internal/redact"
	"github.com/fyrsmithlabs/filingqa/internal/reranker"
	"github.com/fyrsmithlabs/filingqa/internal/scope"
	"github.com/fyrsmithlabs/filingqa/internal/vectorstore"
)

// Registry provides access to the wired filingqa components.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Config() *config.Config
	QA() *qa.Service
	Index() *index.Index
	Embedder() embeddings.Provider
	Scrubber() *redact.Scrubber
	Events() *events.Bus
	Documents() []qa.Document
	Close() error
}

// Options configures the registry with component instances.
type Options struct {
	Config   *config.Config
	QA       *qa.Service
	Index    *index.Index
	Embedder embeddings.Provider
	Scrubber *redact.Scrubber
	Events   *events.Bus
}

// registry is the concrete implementation of Registry.
type registry struct {
	config   *config.Config
	qa       *qa.Service
	index    *index.Index
	embedder embeddings.Provider
	scrubber *redact.Scrubber
	events   *events.Bus
}

// NewRegistry creates a registry over already constructed components.
func NewRegistry(opts Options) Registry {
	return &registry{
		config:   opts.Config,
		qa:       opts.QA,
		index:    opts.Index,
		embedder: opts.Embedder,
		scrubber: opts.Scrubber,
		events:   opts.Events,
	}
}

func (r *registry) Config() *config.Config        { return r.config }
func (r *registry) QA() *qa.Service               { return r.qa }
func (r *registry) Index() *index.Index           { return r.index }
func (r *registry) Embedder() embeddings.Provider { return r.embedder }
func (r *registry) Scrubber() *redact.Scrubber    { return r.scrubber }
func (r *registry) Events() *events.Bus           { return r.events }

// Documents returns the configured corpus.
func (r *registry) Documents() []qa.Document {
	if r.config == nil {
		return nil
	}
	return Documents(r.config)
}

// Close releases the index backend, the embedding provider and the event
// bus connection.
func (r *registry) Close() error {
	var errs []error
	if r.index != nil {
		if err := r.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("index close: %w", err))
		}
	}
	if r.embedder != nil {
		if err := r.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embedder close: %w", err))
		}
	}
	if r.events != nil {
		r.events.Close()
	}
	return errors.Join(errs...)
}

// Documents converts the configured corpus to qa documents.
func Documents(cfg *config.Config) []qa.Document {
	docs := make([]qa.Document, 0, len(cfg.Ingest.Documents))
	for _, d := range cfg.Ingest.Documents {
		docs = append(docs, qa.Document{Path: d.Path, Name: d.Name})
	}
	return docs
}

// BuildOption adjusts Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	extractor extract.Extractor
	embedder  embeddings.Provider
	generator generation.Generator
	noEvents  bool
}

// WithExtractor replaces the default PDF/text extractor.
func WithExtractor(e extract.Extractor) BuildOption {
	return func(o *buildOptions) { o.extractor = e }
}

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(p embeddings.Provider) BuildOption {
	return func(o *buildOptions) { o.embedder = p }
}

// WithGenerator replaces the configured generator.
func WithGenerator(g generation.Generator) BuildOption {
	return func(o *buildOptions) { o.generator = g }
}

// WithoutEvents skips connecting to the event bus even when configured.
func WithoutEvents() BuildOption {
	return func(o *buildOptions) { o.noEvents = true }
}

// Build constructs every component named by cfg. On error, components
// created so far are closed.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...BuildOption) (_ Registry, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	reg := &registry{config: cfg}
	defer func() {
		if err != nil {
			_ = reg.Close()
		}
	}()

	extractor := o.extractor
	if extractor == nil {
		extractor = extract.NewAuto()
	}

	reg.embedder = o.embedder
	if reg.embedder == nil {
		reg.embedder, err = embeddings.NewProvider(cfg.Embeddings, logger.Named("embeddings"))
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
	}

	backend, err := vectorstore.NewBackend(cfg, logger.Named("vectorstore").Underlying())
	if err != nil {
		return nil, fmt.Errorf("creating index backend: %w", err)
	}
	var indexOpts []index.Option
	if backend != nil {
		indexOpts = append(indexOpts, index.WithBackend(backend))
	}
	reg.index = index.New(reg.embedder, indexOpts...)

	rr, err := reranker.NewFromConfig(cfg.Reranker)
	if err != nil {
		return nil, fmt.Errorf("creating reranker: %w", err)
	}

	gen := o.generator
	if gen == nil {
		gen, err = generation.New(cfg.Generation)
		if err != nil {
			return nil, fmt.Errorf("creating generator: %w", err)
		}
	}
	assembler := answer.New(gen, answer.Options{
		MaxContextChars: cfg.Generation.MaxContextChars,
		Sampling: generation.Sampling{
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
			Seed:        cfg.Generation.Seed,
		},
	}, logger)

	reg.scrubber, err = redact.New(cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}

	if !o.noEvents {
		reg.events, err = events.Connect(cfg.Events, logger.Named("events"))
		if err != nil {
			return nil, err
		}
	}

	deps := qa.Dependencies{
		Extractor: extractor,
		Embedder:  reg.embedder,
		Index:     reg.index,
		Reranker:  rr,
		Scope:     scope.New(cfg.Scope),
		Assembler: assembler,
		Scrubber:  reg.scrubber,
		Logger:    logger,
	}
	if reg.events != nil {
		deps.Publisher = reg.events
	}
	reg.qa, err = qa.New(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("creating qa service: %w", err)
	}

	logger.Debug(ctx, "components ready",
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("backend", cfg.Index.Backend),
		zap.String("reranker", cfg.Reranker.Provider),
		zap.String("generation", cfg.Generation.Provider),
		zap.Bool("redaction", reg.scrubber != nil),
		zap.Bool("events", reg.events != nil),
	)
	return reg, nil
}
