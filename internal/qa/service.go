// Package qa is the question answering service over the filings index:
// ingestion, index loading and the per-question pipeline of scope
// filtering, retrieval, re-ranking and answer assembly.
package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/answer"
	"github.com/fyrsmithlabs/filingqa/internal/chunker"
	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/embeddings"
	"github.com/fyrsmithlabs/filingqa/internal/evaluation"
	"github.com/fyrsmithlabs/filingqa/internal/events"
	"github.com/fyrsmithlabs/filingqa/internal/extract"
	"github.com/fyrsmithlabs/filingqa/internal/index"
	"github.com/fyrsmithlabs/filingqa/internal/logging"
	"github.com/fyrsmithlabs/filingqa/internal/redact"
	"github.com/fyrsmithlabs/filingqa/internal/reranker"
	"github.com/fyrsmithlabs/filingqa/internal/scope"
)

const instrumentationName = "github.com/fyrsmithlabs/filingqa/internal/qa"

// Publisher announces rebuilt indexes to other processes.
type Publisher interface {
	PublishRebuilt(ctx context.Context, ev events.IndexRebuilt) error
}

// Dependencies are the collaborators of a Service. Extractor, Embedder,
// Index and Assembler are required.
type Dependencies struct {
	Extractor extract.Extractor
	Embedder  embeddings.Provider
	Index     *index.Index
	Reranker  *reranker.Reranker
	Scope     *scope.Filter
	Assembler *answer.Assembler

	// Scrubber redacts secrets from page text before chunking. Optional.
	Scrubber *redact.Scrubber
	// Publisher is notified after each successful rebuild. Optional.
	Publisher Publisher
	Logger    *logging.Logger
}

// Service answers questions about the ingested filings. All methods are
// safe for concurrent use; ingestion and loading are serialized while
// questions keep being answered from the current snapshot.
type Service struct {
	cfg  *config.Config
	deps Dependencies
	log  *logging.Logger

	ingestMu sync.Mutex
	stats    *Stats

	queries  metric.Int64Counter
	ingested metric.Int64Counter
}

// New validates deps and creates a Service.
func New(cfg *config.Config, deps Dependencies) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	switch {
	case deps.Extractor == nil:
		return nil, errors.New("qa: extractor is required")
	case deps.Embedder == nil:
		return nil, errors.New("qa: embedder is required")
	case deps.Index == nil:
		return nil, errors.New("qa: index is required")
	case deps.Assembler == nil:
		return nil, errors.New("qa: assembler is required")
	}
	if deps.Reranker == nil {
		deps.Reranker = reranker.New(nil, reranker.Options{})
	}
	if deps.Scope == nil {
		deps.Scope = scope.New(cfg.Scope)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	meter := otel.Meter(instrumentationName)
	queries, _ := meter.Int64Counter("filingqa.queries",
		metric.WithDescription("Questions answered, by status"))
	ingested, _ := meter.Int64Counter("filingqa.ingest.documents",
		metric.WithDescription("Documents processed by ingestion, by outcome"))

	return &Service{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.Named("qa"),
		stats:    newStats(),
		queries:  queries,
		ingested: ingested,
	}, nil
}

// Stats returns the query and index counters.
func (s *Service) Stats() *Stats { return s.stats }

// Ready reports whether an index is published.
func (s *Service) Ready() bool { return s.deps.Index.Built() }

// IngestReport summarises one ingestion run.
type IngestReport struct {
	Documents  int               `json:"documents"`
	Succeeded  []string          `json:"succeeded"`
	Failed     []*IngestionError `json:"failed,omitempty"`
	Chunks     int               `json:"chunks"`
	Duplicates int               `json:"duplicates"`
	Redactions int               `json:"redactions"`
	Dir        string            `json:"dir"`
	CreatedAt  time.Time         `json:"created_at"`
	Duration   time.Duration     `json:"duration_ns"`
}

// MarshalJSON renders the wrapped error as a string.
func (e *IngestionError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Document string `json:"document"`
		Path     string `json:"path"`
		Error    string `json:"error"`
	}{e.Document, e.Path, msg})
}

// UnmarshalJSON restores an IngestionError written by MarshalJSON.
func (e *IngestionError) UnmarshalJSON(data []byte) error {
	var v struct {
		Document string `json:"document"`
		Path     string `json:"path"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	e.Document, e.Path = v.Document, v.Path
	if v.Error != "" {
		e.Err = errors.New(v.Error)
	}
	return nil
}

// ExtractedDocument is the page text of one document, scrubbed when
// redaction is enabled.
type ExtractedDocument struct {
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	Pages      []extract.Page `json:"pages"`
	Redactions int            `json:"redactions"`
}

// Ingest rebuilds the index from docs. Documents that fail are reported and
// skipped. When every document fails the current index is kept and an
// error wrapping ErrAllDocumentsFailed is returned.
func (s *Service) Ingest(ctx context.Context, docs []Document) (IngestReport, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "qa.ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("documents", len(docs)))

	if len(docs) == 0 {
		return IngestReport{}, ErrNoDocuments
	}

	extracted := make([]ExtractedDocument, 0, len(docs))
	var failed []*IngestionError
	for _, doc := range docs {
		ed, err := s.ExtractDocument(ctx, doc)
		if err != nil {
			var ie *IngestionError
			if !errors.As(err, &ie) {
				ie = &IngestionError{Document: doc.Name, Path: doc.Path, Err: err}
			}
			failed = append(failed, ie)
			continue
		}
		extracted = append(extracted, ed)
	}

	report, err := s.build(ctx, extracted, failed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest failed")
	}
	return report, err
}

// ExtractDocument reads and scrubs one document. Failures are returned as
// *IngestionError.
func (s *Service) ExtractDocument(ctx context.Context, doc Document) (ExtractedDocument, error) {
	ctx = logging.WithDocument(ctx, doc.Name)
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "qa.extract_document")
	defer span.End()
	span.SetAttributes(attribute.String("document", doc.Name))

	fail := func(err error) (ExtractedDocument, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract failed")
		s.log.Warn(ctx, "skipping document", zap.String("path", doc.Path), zap.Error(err))
		s.ingested.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		return ExtractedDocument{}, &IngestionError{Document: doc.Name, Path: doc.Path, Err: err}
	}

	if strings.TrimSpace(doc.Name) == "" {
		return fail(errors.New("document name is empty"))
	}
	pages, err := s.deps.Extractor.Extract(ctx, doc.Path)
	if err != nil {
		return fail(err)
	}

	ed := ExtractedDocument{Name: doc.Name, Path: doc.Path, Pages: pages}
	if s.deps.Scrubber != nil {
		var rep redact.Report
		ed.Pages, rep = s.deps.Scrubber.ScrubPages(pages)
		ed.Redactions = rep.Redactions
		if rep.Redactions > 0 {
			s.log.Info(ctx, "redacted secrets from document", zap.Int("redactions", rep.Redactions))
		}
	}

	s.log.Debug(ctx, "extracted document", zap.Int("pages", len(pages)))
	return ed, nil
}

// BuildIndex chunks, embeds, persists and publishes already extracted
// documents. failed carries extraction failures to include in the report.
func (s *Service) BuildIndex(ctx context.Context, docs []ExtractedDocument, failed []*IngestionError) (IngestReport, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	return s.build(ctx, docs, failed)
}

func (s *Service) build(ctx context.Context, docs []ExtractedDocument, failed []*IngestionError) (IngestReport, error) {
	start := time.Now()
	report := IngestReport{
		Documents: len(docs) + len(failed),
		Succeeded: []string{},
		Failed:    failed,
		Dir:       s.cfg.Index.Dir,
	}

	ch, err := chunker.New(chunker.Options{
		Size:     s.cfg.Chunking.Size,
		Overlap:  s.cfg.Chunking.Overlap,
		MinChars: s.cfg.Chunking.MinChars,
	})
	if err != nil {
		return report, err
	}
	corpus := chunker.NewCorpus(ch)

	for _, doc := range docs {
		dctx := logging.WithDocument(ctx, doc.Name)
		n, err := corpus.Add(doc.Name, doc.Pages)
		if err == nil && n == 0 {
			err = extract.ErrNoText
		}
		if err != nil {
			s.log.Warn(dctx, "skipping document", zap.String("path", doc.Path), zap.Error(err))
			s.ingested.Add(dctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
			report.Failed = append(report.Failed, &IngestionError{Document: doc.Name, Path: doc.Path, Err: err})
			continue
		}
		s.ingested.Add(dctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
		report.Succeeded = append(report.Succeeded, doc.Name)
		report.Redactions += doc.Redactions
		s.log.Info(dctx, "chunked document", zap.Int("chunks", n))
	}

	if len(report.Succeeded) == 0 {
		errs := make([]error, 0, len(report.Failed))
		for _, f := range report.Failed {
			errs = append(errs, f)
		}
		report.Duration = time.Since(start)
		return report, fmt.Errorf("%w: %w", ErrAllDocumentsFailed, errors.Join(errs...))
	}

	chunks := corpus.Chunks()
	report.Chunks = len(chunks)
	report.Duplicates = corpus.Duplicates()

	meta := index.Meta{
		EmbeddingModel: s.cfg.Embeddings.Model,
		ChunkSize:      ch.Size(),
		ChunkOverlap:   ch.Overlap(),
		CreatedAt:      time.Now().UTC(),
	}
	var snap *index.Snapshot
	err = s.retry(ctx, "build_index", func() error {
		var err error
		if snap, err = index.Build(ctx, s.deps.Embedder, chunks, s.cfg.Ingest.BatchSize, meta); err != nil {
			return &EmbeddingServiceError{Err: fmt.Errorf("building index: %w", err)}
		}
		return nil
	})
	if err != nil {
		report.Duration = time.Since(start)
		return report, err
	}
	if err := index.Save(snap, s.cfg.Index.Dir); err != nil {
		return report, fmt.Errorf("saving index: %w", err)
	}
	if _, err := s.deps.Index.Publish(ctx, snap); err != nil {
		return report, fmt.Errorf("publishing index: %w", err)
	}
	s.stats.recordIndex(snap.Len(), meta.EmbeddingModel, meta.CreatedAt)

	report.CreatedAt = meta.CreatedAt
	report.Duration = time.Since(start)
	s.log.Info(ctx, "index rebuilt",
		zap.Int("chunks", report.Chunks),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration))

	if s.deps.Publisher != nil {
		ev := events.IndexRebuilt{
			CreatedAt:      meta.CreatedAt,
			Count:          snap.Len(),
			Dir:            s.cfg.Index.Dir,
			EmbeddingModel: meta.EmbeddingModel,
		}
		if err := s.deps.Publisher.PublishRebuilt(ctx, ev); err != nil {
			s.log.Warn(ctx, "failed to announce rebuilt index", zap.Error(err))
		}
	}
	return report, nil
}

// Load publishes the index persisted under index.dir.
func (s *Service) Load(ctx context.Context) error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	dir := s.cfg.Index.Dir
	if !index.Exists(dir) {
		return fmt.Errorf("%w: no index at %s", ErrIndexNotBuilt, dir)
	}
	snap, err := index.Load(dir, s.deps.Embedder.Dimension())
	if err != nil {
		return fmt.Errorf("loading index from %s: %w", dir, err)
	}
	if _, err := s.deps.Index.Publish(ctx, snap); err != nil {
		return fmt.Errorf("publishing index: %w", err)
	}
	meta := snap.Meta()
	s.stats.recordIndex(snap.Len(), meta.EmbeddingModel, meta.CreatedAt)
	s.log.Info(ctx, "index loaded", zap.String("dir", dir), zap.Int("chunks", snap.Len()))
	return nil
}

// AnswerQuestion answers query. It never fails: every outcome, including
// internal panics, is reported through Result.Status.
func (s *Service) AnswerQuestion(ctx context.Context, query string) (res Result) {
	queryID := uuid.NewString()
	ctx = logging.WithQueryID(ctx, queryID)
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "qa.answer_question")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "panic while answering", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			span.SetStatus(codes.Error, "panic")
			res = fixed(StatusUnavailable, AnswerUnavailable)
		}
		res.QueryID = queryID
		elapsed := time.Since(start)
		s.stats.recordQuery(res.Status, elapsed)
		s.queries.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(res.Status))))
		span.SetAttributes(attribute.String("status", string(res.Status)), attribute.Int("sources", len(res.Sources)))
		span.End()
		s.log.Info(ctx, "answered question",
			logging.Text("question", query),
			zap.String("status", string(res.Status)),
			zap.Int("sources", len(res.Sources)),
			zap.Duration("duration", elapsed))
	}()

	if strings.TrimSpace(query) == "" {
		return fixed(StatusNoEvidence, AnswerNoEvidence)
	}
	if !s.deps.Index.Built() {
		return fixed(StatusNotIndexed, AnswerNotIndexed)
	}
	if d := s.deps.Scope.Classify(query); d.OutOfScope {
		s.log.Debug(ctx, "question out of scope", zap.String("rule", string(d.Rule)), zap.String("match", d.Match))
		return fixed(StatusOutOfScope, AnswerOutOfScope)
	}

	err := s.retry(ctx, "answer", func() error {
		var err error
		res, err = s.answer(ctx, query)
		return err
	})

	switch {
	case err == nil:
		return res
	case errors.Is(err, ErrIndexNotBuilt):
		return fixed(StatusNotIndexed, AnswerNotIndexed)
	case errors.Is(err, ErrNoEvidenceFound):
		return fixed(StatusNoEvidence, AnswerNoEvidence)
	default:
		span.RecordError(err)
		s.log.Error(ctx, "answering failed", zap.Error(err))
		return fixed(StatusUnavailable, AnswerUnavailable)
	}
}

// retry runs fn, repeating it up to retry.attempts more times after
// retry.backoff while it fails with a model service error.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	for attempt := 1; attempt <= s.cfg.Retry.Attempts && err != nil && retryable(err); attempt++ {
		s.log.Warn(ctx, "retrying after model failure",
			zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-time.After(s.cfg.Retry.Backoff.Duration()):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
		err = fn()
	}
	return err
}

func (s *Service) answer(ctx context.Context, query string) (Result, error) {
	candidates, err := s.deps.Index.Search(ctx, query, s.cfg.Retrieval.Candidates)
	if err != nil {
		if errors.Is(err, index.ErrNotBuilt) {
			return Result{}, err
		}
		return Result{}, &EmbeddingServiceError{Err: err}
	}
	if len(candidates) == 0 {
		return Result{}, ErrNoEvidenceFound
	}

	scored, err := s.deps.Reranker.Rerank(ctx, query, candidates, s.cfg.Retrieval.TopK)
	if err != nil {
		s.log.Warn(ctx, "re-ranking failed, using vector order", zap.Error(err))
		scored = vectorOrder(candidates, s.cfg.Retrieval.TopK)
	}
	if s.cfg.Retrieval.UseMinScore {
		kept := scored[:0]
		for _, sc := range scored {
			if sc.Score >= s.cfg.Retrieval.MinScore {
				kept = append(kept, sc)
			}
		}
		scored = kept
	}
	if len(scored) == 0 {
		return Result{}, ErrNoEvidenceFound
	}

	ans, err := s.deps.Assembler.Assemble(ctx, query, scored)
	if err != nil {
		return Result{}, &GenerationServiceError{Err: err}
	}
	if ans.Text == answer.NotSpecified {
		return Result{}, ErrNoEvidenceFound
	}

	sources := ans.Sources
	if sources == nil {
		sources = []string{}
	}
	return Result{
		Answer:              ans.Text,
		Sources:             sources,
		Status:              StatusAnswered,
		UnverifiedCitations: ans.UnverifiedCitations,
	}, nil
}

func vectorOrder(candidates []index.Candidate, k int) []reranker.Scored {
	n := min(k, len(candidates))
	out := make([]reranker.Scored, n)
	for i := range n {
		out[i] = reranker.Scored{Candidate: candidates[i], Score: -float64(candidates[i].Distance), Rank: i}
	}
	return out
}

// Evaluate answers every question and grades the results.
func (s *Service) Evaluate(ctx context.Context, questions []evaluation.Question) ([]evaluation.Outcome, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "qa.evaluate")
	defer span.End()

	outcomes := make([]evaluation.Outcome, 0, len(questions))
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		start := time.Now()
		res := s.AnswerQuestion(ctx, q.Question)
		o := evaluation.Grade(q, evaluation.Answer{
			Text:    res.Answer,
			Sources: res.Sources,
			Status:  string(res.Status),
		})
		o.Latency = time.Since(start)
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}
