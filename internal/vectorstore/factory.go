package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/index"
	"github.com/fyrsmithlabs/filingqa/internal/sanitize"
)

// NewBackend returns the index backend selected by cfg.Index.Backend.
//
//   - "flat" (default): nil, the index searches its snapshot in memory
//   - "chromem": embedded ChromemStore at cfg.Chromem.Path
//   - "qdrant": QdrantStore at cfg.Qdrant.Host:Port
func NewBackend(cfg *config.Config, logger *zap.Logger) (index.Backend, error) {
	switch cfg.Index.Backend {
	case "flat", "":
		return nil, nil
	case "chromem":
		store, err := NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: sanitize.CollectionName(cfg.Chromem.Collection, ""),
		}, logger)
		if err != nil {
			return nil, err
		}
		return AsBackend(store), nil
	case "qdrant":
		store, err := NewQdrantStore(QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
			CollectionName: sanitize.CollectionName(cfg.Qdrant.CollectionName, ""),
		}, logger)
		if err != nil {
			return nil, err
		}
		return AsBackend(store), nil
	default:
		return nil, fmt.Errorf("%w: unsupported index backend %q (supported: flat, chromem, qdrant)", ErrInvalidConfig, cfg.Index.Backend)
	}
}
