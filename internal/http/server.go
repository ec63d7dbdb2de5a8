// Package http provides the HTTP API for filingqa.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/evaluation"
	"github.com/fyrsmithlabs/filingqa/internal/logging"
	"github.com/fyrsmithlabs/filingqa/internal/qa"
	"github.com/fyrsmithlabs/filingqa/internal/redact"
	"github.com/fyrsmithlabs/filingqa/internal/sanitize"
)

// QA is the question answering service behind the API.
type QA interface {
	AnswerQuestion(ctx context.Context, query string) qa.Result
	Ingest(ctx context.Context, docs []qa.Document) (qa.IngestReport, error)
	Evaluate(ctx context.Context, questions []evaluation.Question) ([]evaluation.Outcome, error)
	Ready() bool
	Stats() *qa.Stats
}

// Server provides HTTP endpoints for filingqa.
type Server struct {
	echo     *echo.Echo
	qa       QA
	scrubber *redact.Scrubber
	logger   *zap.Logger
	config   *Config
	registry *prometheus.Registry
}

// Config holds HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	BodyLimit string
	Version   string

	// Documents are ingested when POST /api/v1/ingest names none.
	Documents []qa.Document
	// Model labels evaluation reports.
	Model string
	// DocumentRoot confines documents named in ingest requests.
	DocumentRoot string
}

// NewServer creates a new HTTP server. scrubber may be nil, in which case
// the scrub endpoint is not registered.
func NewServer(svc QA, scrubber *redact.Scrubber, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("qa service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", requestID),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newStatsCollector(svc.Stats()),
	)

	s := &Server{
		echo:     e,
		qa:       svc,
		scrubber: scrubber,
		logger:   logger,
		config:   cfg,
		registry: registry,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/evaluate", s.handleEvaluate)
	v1.GET("/stats", s.handleStats)
	if s.scrubber != nil {
		v1.POST("/scrub", s.handleScrub)
	}
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// handleHealth reports that the process is up.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

// handleReady reports whether an index is published.
func (s *Server) handleReady(c echo.Context) error {
	if !s.qa.Ready() {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: string(qa.StatusNotIndexed)})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}

// handleAsk answers one question. Every outcome is a 200 with a status;
// only a malformed request is an HTTP error.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	res := s.qa.AnswerQuestion(c.Request().Context(), req.Question)
	c.Set(outcomeKey, string(res.Status))
	return c.JSON(http.StatusOK, res)
}

// handleIngest rebuilds the index.
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	docs := s.config.Documents
	if len(req.Documents) > 0 {
		var err error
		if docs, err = checkDocuments(req.Documents, s.config.DocumentRoot); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	report, err := s.qa.Ingest(c.Request().Context(), docs)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, IngestResponse{Report: report})
	case errors.Is(err, qa.ErrNoDocuments):
		return echo.NewHTTPError(http.StatusBadRequest, "no documents to ingest")
	case errors.Is(err, qa.ErrAllDocumentsFailed):
		return c.JSON(http.StatusUnprocessableEntity, IngestResponse{Report: report, Error: err.Error()})
	default:
		s.logger.Error("ingest failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, IngestResponse{Report: report, Error: err.Error()})
	}
}

// checkDocuments rejects caller-named documents with unusable names or paths
// outside root. With a root, paths are rewritten to their resolved location.
func checkDocuments(docs []qa.Document, root string) ([]qa.Document, error) {
	out := make([]qa.Document, 0, len(docs))
	for _, d := range docs {
		abs, err := sanitize.Document(d.Name, d.Path, root)
		if err != nil {
			return nil, err
		}
		if root != "" {
			d.Path = abs
		}
		out = append(out, d)
	}
	return out, nil
}

// handleEvaluate runs a question set and returns the graded report.
func (s *Server) handleEvaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid evaluate request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	questions := req.Questions
	if len(questions) == 0 {
		questions = evaluation.DefaultQuestions()
	}
	if err := evaluation.Validate(questions); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcomes, err := s.qa.Evaluate(c.Request().Context(), questions)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, evaluation.NewReport(s.config.Model, outcomes))
}

// handleStats returns query and index statistics.
func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.qa.Stats().Snapshot())
}

// handleScrub scrubs secrets from the provided content.
func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.scrubber.Scrub(req.Content)
	s.logger.Debug("scrubbed content", zap.Int("findings", len(result.Findings)))

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Text,
		FindingsCount: len(result.Findings),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
