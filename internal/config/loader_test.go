package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a config file with the given mode into a temp dir.
func writeConfig(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Chunking.Size != 500 || cfg.Chunking.Overlap != 50 {
		t.Errorf("Chunking = %+v, want size 500 overlap 50", cfg.Chunking)
	}
	if cfg.Retrieval.Candidates != 10 || cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval = %+v, want candidates 10 top_k 5", cfg.Retrieval)
	}
	if cfg.Scope.ReferenceYear != 2024 {
		t.Errorf("Scope.ReferenceYear = %d, want 2024", cfg.Scope.ReferenceYear)
	}
	if cfg.Generation.MaxTokens != 300 {
		t.Errorf("Generation.MaxTokens = %d, want 300", cfg.Generation.MaxTokens)
	}
	if cfg.Generation.Seed != 42 {
		t.Errorf("Generation.Seed = %d, want 42", cfg.Generation.Seed)
	}
	if cfg.Retry.Attempts != 1 {
		t.Errorf("Retry.Attempts = %d, want 1", cfg.Retry.Attempts)
	}
	if cfg.Index.Dir != "./rag_index" {
		t.Errorf("Index.Dir = %q, want ./rag_index", cfg.Index.Dir)
	}
	if len(cfg.Ingest.Documents) != 2 {
		t.Errorf("Ingest.Documents = %d entries, want 2", len(cfg.Ingest.Documents))
	}
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	path := writeConfig(t, `server:
  http_port: 9191
chunking:
  size: 300
  overlap: 30
scope:
  reference_year: 2023
  forward_looking: [forecast, guidance]
generation:
  timeout: 5s
ingest:
  documents:
    - path: a.pdf
      name: Alpha 10-K
`, 0600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Chunking.Size != 300 || cfg.Chunking.Overlap != 30 {
		t.Errorf("Chunking = %+v, want 300/30", cfg.Chunking)
	}
	if cfg.Scope.ReferenceYear != 2023 {
		t.Errorf("Scope.ReferenceYear = %d, want 2023", cfg.Scope.ReferenceYear)
	}
	if len(cfg.Scope.ForwardLooking) != 2 || cfg.Scope.ForwardLooking[1] != "guidance" {
		t.Errorf("Scope.ForwardLooking = %v", cfg.Scope.ForwardLooking)
	}
	if cfg.Generation.Timeout.Duration() != 5*time.Second {
		t.Errorf("Generation.Timeout = %v, want 5s", cfg.Generation.Timeout.Duration())
	}
	if len(cfg.Ingest.Documents) != 1 || cfg.Ingest.Documents[0].Name != "Alpha 10-K" {
		t.Errorf("Ingest.Documents = %+v", cfg.Ingest.Documents)
	}
}

func TestLoadWithFile_ExplicitZeroKept(t *testing.T) {
	path := writeConfig(t, `retry:
  attempts: 0
`, 0600)
	t.Setenv("FILINGQA_GENERATION_SEED", "0")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Retry.Attempts != 0 {
		t.Errorf("Retry.Attempts = %d, want 0 (retries disabled)", cfg.Retry.Attempts)
	}
	if cfg.Generation.Seed != 0 {
		t.Errorf("Generation.Seed = %d, want 0 from env", cfg.Generation.Seed)
	}
	if cfg.Retry.Backoff == 0 {
		t.Errorf("Retry.Backoff not defaulted")
	}
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, `server:
  http_port: 9191
embeddings:
  provider: tei
`, 0600)

	t.Setenv("FILINGQA_SERVER_HTTP_PORT", "7777")
	t.Setenv("FILINGQA_EMBEDDINGS_PROVIDER", "hash")
	t.Setenv("FILINGQA_GENERATION_API_KEY", "sk-test")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (env override)", cfg.Server.Port)
	}
	if cfg.Embeddings.Provider != "hash" {
		t.Errorf("Embeddings.Provider = %q, want hash", cfg.Embeddings.Provider)
	}
	if cfg.Generation.APIKey.Value() != "sk-test" {
		t.Errorf("Generation.APIKey not loaded from env")
	}
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	path := writeConfig(t, "server:\n  http_port: 9191\n", 0666)
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	_, err := LoadWithFile(path)
	if err == nil {
		t.Fatal("LoadWithFile() error = nil, want permission error")
	}
	if !strings.Contains(err.Error(), "insecure config file permissions") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	path := writeConfig(t, `chunking:
  size: 100
  overlap: 100
index:
  backend: faiss
`, 0600)

	_, err := LoadWithFile(path)
	if err == nil {
		t.Fatal("LoadWithFile() error = nil, want validation error")
	}
	for _, want := range []string{"chunking.overlap", "unknown index backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FILINGQA_SERVER_HTTP_PORT", "server.http_port"},
		{"FILINGQA_SCOPE_REFERENCE_YEAR", "scope.reference_year"},
		{"FILINGQA_INDEX_DIR", "index.dir"},
		{"FILINGQA_DEBUG", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := envKey(tt.in); got != tt.want {
				t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv(PathEnv, "/etc/filingqa/other.yaml")
		got, err := resolvePath("custom.yaml")
		if err != nil || got != "custom.yaml" {
			t.Errorf("resolvePath() = %q, %v", got, err)
		}
	})

	t.Run("environment variable", func(t *testing.T) {
		t.Setenv(PathEnv, "/etc/filingqa/filingqa.yaml")
		got, err := resolvePath("")
		if err != nil || got != "/etc/filingqa/filingqa.yaml" {
			t.Errorf("resolvePath() = %q, %v", got, err)
		}
	})

	t.Run("working directory file", func(t *testing.T) {
		t.Setenv(PathEnv, "")
		t.Chdir(t.TempDir())
		if err := os.WriteFile(LocalFile, []byte("chunking:\n  size: 400\n"), 0600); err != nil {
			t.Fatal(err)
		}
		got, err := resolvePath("")
		if err != nil || got != LocalFile {
			t.Errorf("resolvePath() = %q, %v", got, err)
		}
	})
}

func TestLoadWithFile_SecretFromEnvReference(t *testing.T) {
	t.Setenv("OPENAI_TEST_KEY", "sk-from-env")
	path := writeConfig(t, "generation:\n  api_key: env:OPENAI_TEST_KEY\n", 0600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Generation.APIKey.Value() != "sk-from-env" {
		t.Errorf("Generation.APIKey not resolved from env reference")
	}
}
