package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/filingqa/internal/chunker"
	"github.com/fyrsmithlabs/filingqa/internal/index"
)

const qdrantTracerName = "filingqa.vectorstore.qdrant"

// pointNamespace derives stable Qdrant point UUIDs from chunk ids.
var pointNamespace = uuid.MustParse("6f1c1c3e-3a5e-4e0b-9d55-0b7f1f4b8a10")

// QdrantConfig holds configuration for Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port). Default 6334.
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// CollectionName is the alias searches go through. It points at the
	// live generation collection, CollectionName_g<n>.
	CollectionName string

	// UseTLS enables TLS encryption for gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff duration, doubled on each retry.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return validateBaseName(c.CollectionName)
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts, temporary unavailability.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// PointID returns the Qdrant point id for a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// QdrantStore is a Store backed by Qdrant's native gRPC API. Collections
// use Euclidean distance; scores are squared before being returned.
// Generations are swapped by moving the CollectionName alias.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore connects to Qdrant and performs a health check.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{client: client, config: config, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	return s, nil
}

// call runs op on collection under a span named after it, retrying
// transient gRPC failures with doubling backoff.
func (s *QdrantStore) call(ctx context.Context, op, collection string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := otel.Tracer(qdrantTracerName).Start(ctx, "qdrant."+op,
		trace.WithAttributes(append(attrs, attribute.String("collection", collection))...))
	defer span.End()

	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case !IsTransientError(err):
			err = fmt.Errorf("qdrant %s on %s: %w", op, collection, err)
		case attempt == s.config.MaxRetries:
			err = fmt.Errorf("qdrant %s on %s failed after %d retries: %w", op, collection, attempt, err)
		default:
			s.logger.Debug("retrying qdrant call",
				zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
			select {
			case <-ctx.Done():
				err = fmt.Errorf("qdrant %s canceled: %w", op, ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
				continue
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
}

// Upsert writes records into the live generation as points keyed by
// PointID(chunk id).
func (s *QdrantStore) Upsert(ctx context.Context, records []index.Record) error {
	return s.upsert(ctx, s.config.CollectionName, records)
}

func (s *QdrantStore) upsert(ctx context.Context, collection string, records []index.Record) error {
	if len(records) == 0 {
		return ErrEmptyRecords
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.Chunk.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: chunkPayload(r.Chunk),
		}
	}

	return s.call(ctx, "upsert", collection, func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}, attribute.Int("records", len(records)))
}

// Search returns the k nearest chunks. Search is exact so that results
// match the flat index on the same corpus.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]index.Candidate, error) {
	if k <= 0 {
		return []index.Candidate{}, nil
	}

	var points []*qdrant.ScoredPoint
	err := s.call(ctx, "search", s.config.CollectionName, func(ctx context.Context) error {
		var err error
		points, err = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(query...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(true)},
		})
		return err
	}, attribute.Int("k", k))
	if err != nil {
		return nil, err
	}

	out := make([]index.Candidate, 0, len(points))
	for _, p := range points {
		c, err := chunkFromPayload(p.Payload)
		if err != nil {
			return nil, err
		}
		// Euclid scores are plain L2; the index ranks by squared L2.
		out = append(out, index.Candidate{Chunk: c, Distance: p.Score * p.Score})
	}
	return out, nil
}

// liveCollection returns the collection the alias points at, or "".
func (s *QdrantStore) liveCollection(ctx context.Context) (string, error) {
	var aliases []*qdrant.AliasDescription
	if err := s.call(ctx, "list_aliases", s.config.CollectionName, func(ctx context.Context) error {
		var err error
		aliases, err = s.client.ListAliases(ctx)
		return err
	}); err != nil {
		return "", err
	}
	for _, a := range aliases {
		if a.GetAliasName() == s.config.CollectionName {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// Stage creates the generation after the live one, with a keyword index
// on the document name. Generations the alias does not point at are
// leftovers of interrupted rebuilds and are dropped first.
func (s *QdrantStore) Stage(ctx context.Context, dimension int) (Generation, error) {
	base := s.config.CollectionName
	live, err := s.liveCollection(ctx)
	if err != nil {
		return nil, err
	}

	var collections []string
	if err := s.call(ctx, "list_collections", base, func(ctx context.Context) error {
		var err error
		collections, err = s.client.ListCollections(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	for _, c := range collections {
		if _, ok := parseGeneration(base, c); !ok || c == live {
			continue
		}
		if err := s.dropCollection(ctx, c); err != nil {
			return nil, err
		}
		s.logger.Info("dropped stale qdrant generation", zap.String("collection", c))
	}

	var next uint32
	if n, ok := parseGeneration(base, live); ok {
		next = n + 1
	}
	name := generationName(base, next)

	if err := s.call(ctx, "create_collection", name, func(ctx context.Context) error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Euclid,
			}),
		})
	}, attribute.Int("dimension", dimension)); err != nil {
		return nil, err
	}

	gen := &qdrantGeneration{store: s, name: name, previous: live}
	if err := s.call(ctx, "create_field_index", name, func(ctx context.Context) error {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      "document",
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}); err != nil {
		return nil, abort(ctx, gen, err)
	}
	return gen, nil
}

func (s *QdrantStore) dropCollection(ctx context.Context, name string) error {
	return s.call(ctx, "delete_collection", name, func(ctx context.Context) error {
		return s.client.DeleteCollection(ctx, name)
	})
}

type qdrantGeneration struct {
	store    *QdrantStore
	name     string
	previous string
}

func (g *qdrantGeneration) Name() string { return g.name }

func (g *qdrantGeneration) Upsert(ctx context.Context, records []index.Record) error {
	return g.store.upsert(ctx, g.name, records)
}

// Commit moves the alias to the generation in one request and drops the
// previous generation.
func (g *qdrantGeneration) Commit(ctx context.Context) error {
	s := g.store
	alias := s.config.CollectionName
	actions := []*qdrant.AliasOperations{}
	if g.previous != "" {
		actions = append(actions, qdrant.NewAliasDelete(alias))
	}
	actions = append(actions, qdrant.NewAliasCreate(alias, g.name))
	if err := s.call(ctx, "update_aliases", g.name, func(ctx context.Context) error {
		return s.client.UpdateAliases(ctx, actions)
	}); err != nil {
		return err
	}

	if g.previous != "" {
		if err := s.dropCollection(ctx, g.previous); err != nil {
			s.logger.Warn("dropping previous qdrant generation",
				zap.String("collection", g.previous), zap.Error(err))
		}
	}
	s.logger.Debug("committed qdrant generation", zap.String("alias", alias), zap.String("collection", g.name))
	return nil
}

func (g *qdrantGeneration) Abort(ctx context.Context) error {
	return g.store.dropCollection(ctx, g.name)
}

// Count returns the exact number of points.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	var n uint64
	err := s.call(ctx, "count", s.config.CollectionName, func(ctx context.Context) error {
		var err error
		n, err = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.CollectionName,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	return int(n), err
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func chunkPayload(c chunker.Chunk) map[string]*qdrant.Value {
	return qdrant.NewValueMap(map[string]any{
		"id":       c.ID,
		"text":     c.Text,
		"document": c.Document,
		"page":     int64(c.Page),
		"offset":   int64(c.Offset),
	})
}

func chunkFromPayload(payload map[string]*qdrant.Value) (chunker.Chunk, error) {
	var c chunker.Chunk
	id, ok := payload["id"]
	if !ok {
		return c, fmt.Errorf("qdrant point missing chunk id")
	}
	c.ID = id.GetStringValue()
	c.Text = payload["text"].GetStringValue()
	c.Document = payload["document"].GetStringValue()
	c.Page = int(payload["page"].GetIntegerValue())
	c.Offset = int(payload["offset"].GetIntegerValue())
	if c.Page < 1 {
		return c, fmt.Errorf("qdrant point %s has invalid page %d", c.ID, c.Page)
	}
	return c, nil
}
