// Package config provides configuration loading for filingqa.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file
// and FILINGQA_* environment variables (see LoadWithFile).
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete filingqa configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Index      IndexConfig      `koanf:"index"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Reranker   RerankerConfig   `koanf:"reranker"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Scope      ScopeConfig      `koanf:"scope"`
	Generation GenerationConfig `koanf:"generation"`
	Retry      RetryConfig      `koanf:"retry"`
	Redaction  RedactionConfig  `koanf:"redaction"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Chromem    ChromemConfig    `koanf:"chromem"`
	Events     EventsConfig     `koanf:"events"`
	Temporal   TemporalConfig   `koanf:"temporal"`
	Evaluation EvaluationConfig `koanf:"evaluation"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	BodyLimit       string   `koanf:"body_limit"`
}

// LoggingConfig holds the user-facing logging knobs. The logging package
// owns the full zap configuration and is populated from these values.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	OTEL     bool   `koanf:"otel"`
	Sampling bool   `koanf:"sampling"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// DocumentConfig names one corpus document.
type DocumentConfig struct {
	Path string `koanf:"path"`
	Name string `koanf:"name"`
}

// IngestConfig holds corpus ingestion settings.
type IngestConfig struct {
	Documents []DocumentConfig `koanf:"documents"`
	BatchSize int              `koanf:"batch_size"`
	// Root confines documents named over HTTP or MCP to one directory.
	// Empty allows any path without traversal.
	Root string `koanf:"root"`
}

// ChunkingConfig controls the sliding window chunker.
type ChunkingConfig struct {
	Size     int `koanf:"size"`
	Overlap  int `koanf:"overlap"`
	MinChars int `koanf:"min_chars"`
}

// IndexConfig controls the vector index backend and persistence.
type IndexConfig struct {
	Backend string `koanf:"backend"` // flat, chromem or qdrant
	Dir     string `koanf:"dir"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"` // fastembed, hugot, tei, openai or hash
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	CacheDir  string   `koanf:"cache_dir"`
	Dimension int      `koanf:"dimension"`
	BatchSize int      `koanf:"batch_size"`
	Timeout   Duration `koanf:"timeout"`
}

// RerankerConfig selects and configures the pair scorer.
type RerankerConfig struct {
	Provider    string   `koanf:"provider"` // tei, lexical or none
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	BatchSize   int      `koanf:"batch_size"`
	Parallelism int      `koanf:"parallelism"`
	Timeout     Duration `koanf:"timeout"`
}

// RetrievalConfig controls candidate counts.
type RetrievalConfig struct {
	Candidates  int     `koanf:"candidates"`
	TopK        int     `koanf:"top_k"`
	MinScore    float64 `koanf:"min_score"`
	UseMinScore bool    `koanf:"use_min_score"`
}

// ScopeRule is an additional named keyword rule evaluated after the
// built-in ones.
type ScopeRule struct {
	Name  string   `koanf:"name"`
	Terms []string `koanf:"terms"`
}

// ScopeConfig holds the out-of-scope rule set.
type ScopeConfig struct {
	ReferenceYear    int         `koanf:"reference_year"`
	ForwardLooking   []string    `koanf:"forward_looking"`
	AbsentAttributes []string    `koanf:"absent_attributes"`
	Rules            []ScopeRule `koanf:"rules"`
}

// GenerationConfig configures the answer generator.
type GenerationConfig struct {
	Provider        string   `koanf:"provider"` // openai, ollama or extractive
	Model           string   `koanf:"model"`
	BaseURL         string   `koanf:"base_url"`
	APIKey          Secret   `koanf:"api_key"`
	Temperature     float64  `koanf:"temperature"`
	MaxTokens       int      `koanf:"max_tokens"`
	Seed            int      `koanf:"seed"`
	MaxContextChars int      `koanf:"max_context_chars"`
	Timeout         Duration `koanf:"timeout"`
	RatePerSecond   float64  `koanf:"rate_per_second"`
}

// RetryConfig controls retries of external model calls.
type RetryConfig struct {
	Attempts int      `koanf:"attempts"`
	Backoff  Duration `koanf:"backoff"`
}

// RedactionConfig controls secret scrubbing of ingested text.
type RedactionConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Allowlist string `koanf:"allowlist"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	UseTLS         bool   `koanf:"use_tls"`
	APIKey         Secret `koanf:"api_key"`
	CollectionName string `koanf:"collection_name"`
}

// ChromemConfig holds embedded chromem database settings.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// EventsConfig holds NATS settings for index change notifications.
type EventsConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// TemporalConfig holds Temporal settings for durable ingestion.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// EvaluationConfig holds evaluation defaults.
type EvaluationConfig struct {
	Questions string `koanf:"questions"`
	Output    string `koanf:"output"`
}

// Validate validates the configuration.
//
// All field errors are collected and returned joined, so a single run
// reports every problem.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}

	switch c.Index.Backend {
	case "flat", "chromem", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.Index.Backend))
	}

	switch c.Embeddings.Provider {
	case "fastembed", "hugot", "tei", "openai", "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider))
	}

	switch c.Reranker.Provider {
	case "tei", "lexical", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown reranker provider %q", c.Reranker.Provider))
	}

	if c.Retrieval.TopK <= 0 || c.Retrieval.Candidates < c.Retrieval.TopK {
		errs = append(errs, fmt.Errorf("retrieval requires 0 < top_k <= candidates, got top_k=%d candidates=%d",
			c.Retrieval.TopK, c.Retrieval.Candidates))
	}

	switch c.Generation.Provider {
	case "openai", "ollama", "extractive":
	default:
		errs = append(errs, fmt.Errorf("unknown generation provider %q", c.Generation.Provider))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature must be in [0, 2], got %v", c.Generation.Temperature))
	}

	if c.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("retry.attempts must be >= 0, got %d", c.Retry.Attempts))
	}

	for i, d := range c.Ingest.Documents {
		if d.Path == "" || d.Name == "" {
			errs = append(errs, fmt.Errorf("ingest.documents[%d] requires path and name", i))
		}
	}

	return errors.Join(errs...)
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, func(string) bool { return false })
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
// Fields whose zero value is a valid setting are filled only when set
// reports their key absent.
func applyDefaults(cfg *Config, set func(key string) bool) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.BodyLimit == "" {
		cfg.Server.BodyLimit = "1M"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "filingqa"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}

	if len(cfg.Ingest.Documents) == 0 {
		cfg.Ingest.Documents = []DocumentConfig{
			{Path: "data/10-Q4-2024-As-Filed.pdf", Name: "Apple 10-K"},
			{Path: "data/tsla-20231231-gen.pdf", Name: "Tesla 10-K"},
		}
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 32
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 500
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 50
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "flat"
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "./rag_index"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = "./local_cache"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 384
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}

	if cfg.Reranker.Provider == "" {
		cfg.Reranker.Provider = "lexical"
	}
	if cfg.Reranker.Model == "" {
		cfg.Reranker.Model = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	}
	if cfg.Reranker.BaseURL == "" {
		cfg.Reranker.BaseURL = "http://localhost:8081"
	}
	if cfg.Reranker.BatchSize == 0 {
		cfg.Reranker.BatchSize = 4
	}
	if cfg.Reranker.Parallelism == 0 {
		cfg.Reranker.Parallelism = 4
	}
	if cfg.Reranker.Timeout == 0 {
		cfg.Reranker.Timeout = Duration(15 * time.Second)
	}

	if cfg.Retrieval.Candidates == 0 {
		cfg.Retrieval.Candidates = 10
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	if cfg.Scope.ReferenceYear == 0 {
		cfg.Scope.ReferenceYear = 2024
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "phi3:mini"
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 300
	}
	if cfg.Generation.Seed == 0 && !set("generation.seed") {
		cfg.Generation.Seed = 42
	}
	if cfg.Generation.MaxContextChars == 0 {
		cfg.Generation.MaxContextChars = 2000
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(60 * time.Second)
	}
	if cfg.Generation.RatePerSecond == 0 {
		cfg.Generation.RatePerSecond = 2
	}

	if cfg.Retry.Attempts == 0 && !set("retry.attempts") {
		cfg.Retry.Attempts = 1
	}
	if cfg.Retry.Backoff == 0 {
		cfg.Retry.Backoff = Duration(500 * time.Millisecond)
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.CollectionName == "" {
		cfg.Qdrant.CollectionName = "filingqa_chunks"
	}

	if cfg.Chromem.Path == "" {
		cfg.Chromem.Path = "./rag_index/chromem"
	}
	if cfg.Chromem.Collection == "" {
		cfg.Chromem.Collection = "filingqa_chunks"
	}

	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "filingqa.index.rebuilt"
	}

	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "filingqa-ingest"
	}

	if cfg.Evaluation.Output == "" {
		cfg.Evaluation.Output = "evaluation_results.json"
	}
}
