package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/chunker"
	"github.com/fyrsmithlabs/filingqa/internal/index"
)

const chromemTracerName = "filingqa.vectorstore.chromem"

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name. Default: "filingqa_chunks".
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./rag_index/chromem"
	}
	if c.Collection == "" {
		c.Collection = "filingqa_chunks"
	}
}

// ChromemStore implements Store using chromem-go.
//
// chromem ranks by cosine similarity and normalizes vectors on insert. For
// unit-length embeddings squared L2 equals 2 - 2*cosine, which is the
// distance reported.
//
// Generations are collections named <Collection>_g<n>. The file
// <Path>/<Collection>.live names the live one; collections it does not
// name are leftovers of interrupted rebuilds and are dropped on open.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
	marker string

	mu         sync.RWMutex
	live       *chromem.Collection
	liveName   string
	generation uint32
}

// NewChromemStore opens (or creates) the persistent database at config.Path.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := validateBaseName(config.Collection); err != nil {
		return nil, err
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	s := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
		marker: filepath.Join(path, config.Collection+".live"),
	}
	if err := s.openLive(); err != nil {
		return nil, err
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", s.liveName),
	)
	return s, nil
}

// openLive loads the generation named by the marker, creating an empty
// first generation when there is none, and drops every other generation.
func (s *ChromemStore) openLive() error {
	base := s.config.Collection
	data, err := os.ReadFile(s.marker)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", s.marker, err)
	}
	name := strings.TrimSpace(string(data))
	if n, ok := parseGeneration(base, name); ok {
		if c := s.db.GetCollection(name, noEmbedding); c != nil {
			s.live, s.liveName, s.generation = c, name, n
		}
	}
	if s.live == nil {
		name = generationName(base, 0)
		if err := s.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("dropping %s: %w", name, err)
		}
		c, err := s.db.CreateCollection(name, nil, noEmbedding)
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
		if err := writeMarker(s.marker, name); err != nil {
			return err
		}
		s.live, s.liveName, s.generation = c, name, 0
	}

	for other := range s.db.ListCollections() {
		if _, ok := parseGeneration(base, other); !ok || other == s.liveName {
			continue
		}
		if err := s.db.DeleteCollection(other); err != nil {
			return fmt.Errorf("dropping stale %s: %w", other, err)
		}
		s.logger.Info("dropped stale chromem generation", zap.String("collection", other))
	}
	return nil
}

// writeMarker replaces the marker file atomically.
func writeMarker(path, name string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publishing %s: %w", path, err)
	}
	return nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbedding is installed as the collection's embedding function. Records
// always carry precomputed vectors, so it is never expected to run.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store requires precomputed embeddings")
}

// Upsert adds records to the live generation, replacing any with the
// same chunk id.
func (s *ChromemStore) Upsert(ctx context.Context, records []index.Record) error {
	s.mu.RLock()
	collection := s.live
	s.mu.RUnlock()
	return addRecords(ctx, collection, records)
}

func addRecords(ctx context.Context, collection *chromem.Collection, records []index.Record) error {
	ctx, span := otel.Tracer(chromemTracerName).Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection.Name),
		attribute.Int("record_count", len(records)),
	)

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.Chunk.ID,
			Content:   r.Chunk.Text,
			Metadata:  chunkMetadata(r.Chunk),
			Embedding: append([]float32(nil), r.Vector...),
		}
	}

	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", collection.Name, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search queries the collection by vector.
func (s *ChromemStore) Search(ctx context.Context, query []float32, k int) ([]index.Candidate, error) {
	ctx, span := otel.Tracer(chromemTracerName).Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	s.mu.RLock()
	collection := s.live
	s.mu.RUnlock()

	// chromem requires nResults <= doc count
	k = min(k, collection.Count())
	if k <= 0 {
		return []index.Candidate{}, nil
	}

	results, err := collection.QueryEmbedding(ctx, append([]float32(nil), query...), k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection.Name, err)
	}

	out := make([]index.Candidate, 0, len(results))
	for _, r := range results {
		c, err := chunkFromMetadata(r.ID, r.Content, r.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, index.Candidate{Chunk: c, Distance: 2 - 2*r.Similarity})
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// Stage creates the next generation, replacing any leftover of the same
// name from an aborted rebuild.
func (s *ChromemStore) Stage(ctx context.Context, _ int) (Generation, error) {
	_, span := otel.Tracer(chromemTracerName).Start(ctx, "ChromemStore.Stage")
	defer span.End()

	s.mu.RLock()
	n := s.generation + 1
	s.mu.RUnlock()

	name := generationName(s.config.Collection, n)
	span.SetAttributes(attribute.String("collection", name))
	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dropping leftover %s: %w", name, err)
	}
	c, err := s.db.CreateCollection(name, nil, noEmbedding)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	return &chromemGeneration{store: s, collection: c, n: n}, nil
}

type chromemGeneration struct {
	store      *ChromemStore
	collection *chromem.Collection
	n          uint32
}

func (g *chromemGeneration) Name() string { return g.collection.Name }

func (g *chromemGeneration) Upsert(ctx context.Context, records []index.Record) error {
	return addRecords(ctx, g.collection, records)
}

// Commit points the marker at the generation, swaps it in and drops the
// previous one.
func (g *chromemGeneration) Commit(context.Context) error {
	s := g.store
	if err := writeMarker(s.marker, g.collection.Name); err != nil {
		return err
	}
	s.mu.Lock()
	previous := s.liveName
	s.live, s.liveName, s.generation = g.collection, g.collection.Name, g.n
	s.mu.Unlock()

	if err := s.db.DeleteCollection(previous); err != nil {
		s.logger.Warn("dropping previous chromem generation",
			zap.String("collection", previous), zap.Error(err))
	}
	s.logger.Debug("committed chromem generation",
		zap.String("collection", g.collection.Name), zap.Int("records", g.collection.Count()))
	return nil
}

func (g *chromemGeneration) Abort(context.Context) error {
	return g.store.db.DeleteCollection(g.collection.Name)
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Count(), nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

func chunkMetadata(c chunker.Chunk) map[string]string {
	return map[string]string{
		"document": c.Document,
		"page":     strconv.Itoa(c.Page),
		"offset":   strconv.Itoa(c.Offset),
	}
}

func chunkFromMetadata(id, text string, md map[string]string) (chunker.Chunk, error) {
	page, err := strconv.Atoi(md["page"])
	if err != nil {
		return chunker.Chunk{}, fmt.Errorf("record %s: invalid page %q", id, md["page"])
	}
	offset, err := strconv.Atoi(md["offset"])
	if err != nil {
		return chunker.Chunk{}, fmt.Errorf("record %s: invalid offset %q", id, md["offset"])
	}
	return chunker.Chunk{
		ID:       id,
		Text:     text,
		Document: md["document"],
		Page:     page,
		Offset:   offset,
	}, nil
}
