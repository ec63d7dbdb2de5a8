package embeddings

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	// Model is a fastembed model name. Default sentence-transformers/all-MiniLM-L6-v2.
	Model string
	// CacheDir holds downloaded model files. Default ./local_cache.
	CacheDir string
	// MaxLength caps tokens per text. A 500 character filing chunk is well
	// under the default of 256.
	MaxLength int
	// BatchSize is texts per ONNX run. Default 64.
	BatchSize int
}

const defaultFastEmbedModel = "sentence-transformers/all-MiniLM-L6-v2"

func (c FastEmbedConfig) withDefaults() FastEmbedConfig {
	if c.Model == "" {
		c.Model = defaultFastEmbedModel
	}
	if c.CacheDir == "" {
		c.CacheDir = "local_cache"
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 256
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	return c
}
