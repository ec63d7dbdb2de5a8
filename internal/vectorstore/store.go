package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/filingqa/internal/index"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates empty or nil records.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against security rules.
// Rejects: uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// generationSuffixLen is len("_g") plus eight hex digits.
const generationSuffixLen = 10

// maxBaseNameLength leaves room for the generation suffix.
const maxBaseNameLength = 64 - generationSuffixLen

// validateBaseName checks a configured collection name that generation
// collections are derived from.
func validateBaseName(name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if len(name) > maxBaseNameLength {
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidCollectionName, name, maxBaseNameLength)
	}
	return nil
}

// generationName names the n-th generation of base, e.g. filingqa_chunks_g00000003.
func generationName(base string, n uint32) string {
	return fmt.Sprintf("%s_g%08x", base, n)
}

// parseGeneration reports the generation number of name if it is a
// generation of base.
func parseGeneration(base, name string) (uint32, bool) {
	rest, ok := strings.CutPrefix(name, base+"_g")
	if !ok || len(rest) != 8 {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Store is a vector database holding chunk records. Records live in
// generations: one live generation serves Search while a rebuild fills
// the next one.
type Store interface {
	// Upsert inserts or replaces records in the live generation.
	Upsert(ctx context.Context, records []index.Record) error
	// Search returns up to k candidates from the live generation by
	// ascending squared L2 distance.
	Search(ctx context.Context, query []float32, k int) ([]index.Candidate, error)
	// Stage creates an empty generation for vectors of the given
	// dimension. Calls must not overlap.
	Stage(ctx context.Context, dimension int) (Generation, error)
	// Count returns the number of records in the live generation.
	Count(ctx context.Context) (int, error)
	Close() error
}

// Generation is a collection being filled by a rebuild. Search does not
// see it until Commit.
type Generation interface {
	Name() string
	Upsert(ctx context.Context, records []index.Record) error
	// Commit makes the generation live and drops the one it replaced.
	Commit(ctx context.Context) error
	// Abort drops the generation. The live one is untouched.
	Abort(ctx context.Context) error
}

// DefaultBatchSize bounds the records sent per Upsert during Sync.
const DefaultBatchSize = 256

// storeBackend adapts a Store to index.Backend.
type storeBackend struct {
	store     Store
	batchSize int

	mu sync.Mutex // serializes Sync
}

// AsBackend exposes s as an index backend. Sync uploads the snapshot into
// a new generation and commits it once every batch is stored, so searches
// see either the previous contents or the new ones in full.
func AsBackend(s Store) index.Backend {
	return &storeBackend{store: s, batchSize: DefaultBatchSize}
}

func (b *storeBackend) Sync(ctx context.Context, snap *index.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen, err := b.store.Stage(ctx, snap.Dimension())
	if err != nil {
		return fmt.Errorf("staging generation: %w", err)
	}
	records := snap.Records()
	for start := 0; start < len(records); start += b.batchSize {
		end := min(start+b.batchSize, len(records))
		if err := gen.Upsert(ctx, records[start:end]); err != nil {
			return abort(ctx, gen, fmt.Errorf("upserting records %d-%d into %s: %w", start, end-1, gen.Name(), err))
		}
	}
	if err := gen.Commit(ctx); err != nil {
		return abort(ctx, gen, fmt.Errorf("committing %s: %w", gen.Name(), err))
	}
	return nil
}

// abort drops gen after cause, even when ctx is already canceled.
func abort(ctx context.Context, gen Generation, cause error) error {
	if err := gen.Abort(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(cause, fmt.Errorf("dropping %s: %w", gen.Name(), err))
	}
	return cause
}

func (b *storeBackend) Search(ctx context.Context, query []float32, k int) ([]index.Candidate, error) {
	if k <= 0 {
		return []index.Candidate{}, nil
	}
	return b.store.Search(ctx, query, k)
}

func (b *storeBackend) Close() error {
	return b.store.Close()
}
