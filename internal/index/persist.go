package index

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/filingqa/internal/chunker"
)

// FormatVersion is the on-disk schema version written by Save.
const FormatVersion = 1

const (
	// ManifestFile names the snapshot manifest inside an index directory.
	ManifestFile = "manifest.json"
	chunksFile   = "chunks.json"
	vectorsFile  = "vectors.bin"
)

// ErrIncompatibleIndex is returned when a persisted index cannot be loaded
// by this version or is internally inconsistent.
var ErrIncompatibleIndex = errors.New("incompatible index")

// Manifest describes a persisted snapshot.
type Manifest struct {
	FormatVersion  int       `json:"format_version"`
	Dimension      int       `json:"dimension"`
	Count          int       `json:"count"`
	EmbeddingModel string    `json:"embedding_model"`
	ChunkSize      int       `json:"chunk_size"`
	ChunkOverlap   int       `json:"chunk_overlap"`
	CreatedAt      time.Time `json:"created_at"`
	Checksum       string    `json:"checksum"`
}

// Save writes s to dir. Files are written to a sibling temporary directory
// which then replaces dir, so readers never see a partial index.
func Save(s *Snapshot, dir string) error {
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating index parent: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp index dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	checksum, err := writeVectors(filepath.Join(tmp, vectorsFile), s.vectors)
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(tmp, chunksFile), s.chunks); err != nil {
		return err
	}
	m := Manifest{
		FormatVersion:  FormatVersion,
		Dimension:      s.dim,
		Count:          len(s.chunks),
		EmbeddingModel: s.meta.EmbeddingModel,
		ChunkSize:      s.meta.ChunkSize,
		ChunkOverlap:   s.meta.ChunkOverlap,
		CreatedAt:      s.meta.CreatedAt,
		Checksum:       checksum,
	}
	if err := writeJSON(filepath.Join(tmp, ManifestFile), m); err != nil {
		return err
	}

	var old string
	if _, err := os.Stat(dir); err == nil {
		old = tmp + ".old"
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("moving previous index aside: %w", err)
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			_ = os.Rename(old, dir)
		}
		return fmt.Errorf("publishing index: %w", err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

// Exists reports whether dir holds a manifest.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil
}

// ReadManifest reads and version-checks the manifest in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("reading manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: manifest: %v", ErrIncompatibleIndex, err)
	}
	if m.FormatVersion != FormatVersion {
		return m, fmt.Errorf("%w: format version %d, want %d", ErrIncompatibleIndex, m.FormatVersion, FormatVersion)
	}
	if m.Dimension <= 0 || m.Count <= 0 {
		return m, fmt.Errorf("%w: dimension %d count %d", ErrIncompatibleIndex, m.Dimension, m.Count)
	}
	return m, nil
}

// Load restores the snapshot saved in dir. wantDim, when positive, must
// match the persisted dimension.
func Load(dir string, wantDim int) (*Snapshot, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if wantDim > 0 && m.Dimension != wantDim {
		return nil, fmt.Errorf("%w: index dimension %d, embedder dimension %d", ErrIncompatibleIndex, m.Dimension, wantDim)
	}

	var chunks []chunker.Chunk
	data, err := os.ReadFile(filepath.Join(dir, chunksFile))
	if err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("%w: chunks: %v", ErrIncompatibleIndex, err)
	}
	if len(chunks) != m.Count {
		return nil, fmt.Errorf("%w: manifest count %d, chunks %d", ErrIncompatibleIndex, m.Count, len(chunks))
	}

	raw, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != m.Checksum {
		return nil, fmt.Errorf("%w: vectors checksum mismatch", ErrIncompatibleIndex)
	}
	if len(raw) != m.Count*m.Dimension*4 {
		return nil, fmt.Errorf("%w: vectors file has %d bytes, want %d", ErrIncompatibleIndex, len(raw), m.Count*m.Dimension*4)
	}

	vectors := make([]float32, m.Count*m.Dimension)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return &Snapshot{
		dim:     m.Dimension,
		chunks:  chunks,
		vectors: vectors,
		meta: Meta{
			EmbeddingModel: m.EmbeddingModel,
			ChunkSize:      m.ChunkSize,
			ChunkOverlap:   m.ChunkOverlap,
			CreatedAt:      m.CreatedAt,
		},
	}, nil
}

func writeVectors(path string, vectors []float32) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating vectors file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	w := bufio.NewWriter(io.MultiWriter(f, h))
	var buf [4]byte
	for _, v := range vectors {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := w.Write(buf[:]); err != nil {
			return "", fmt.Errorf("writing vectors: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("writing vectors: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing vectors: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
