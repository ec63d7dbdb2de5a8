package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
	"github.com/fyrsmithlabs/filingqa/internal/redact"
)

// QA is the subset of the qa service the tools call.
type QA interface {
	AnswerQuestion(ctx context.Context, query string) qa.Result
	Ingest(ctx context.Context, docs []qa.Document) (qa.IngestReport, error)
	Ready() bool
	Stats() *qa.Stats
}

// Server is an MCP server backed by the qa service.
type Server struct {
	mcp          *mcp.Server
	qa           QA
	scrubber     *redact.Scrubber
	documents    []qa.Document
	documentRoot string
	toolRegistry *ToolRegistry
	metrics      *Metrics
	logger       *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "filingqa")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// Documents are ingested when ingest_filings is called without any.
	Documents []qa.Document
	// DocumentRoot confines documents named in ingest_filings calls.
	DocumentRoot string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "filingqa",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server. scrubber may be nil.
func NewServer(cfg *Config, svc QA, scrubber *redact.Scrubber) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if svc == nil {
		return nil, fmt.Errorf("qa service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:          mcpServer,
		qa:           svc,
		scrubber:     scrubber,
		documents:    cfg.Documents,
		documentRoot: cfg.DocumentRoot,
		toolRegistry: NewToolRegistry(),
		metrics:      NewMetrics(cfg.Logger),
		logger:       cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Tools returns the registry of tools this server exposes.
func (s *Server) Tools() *ToolRegistry {
	return s.toolRegistry
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve runs the server on transport until the client disconnects or ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
