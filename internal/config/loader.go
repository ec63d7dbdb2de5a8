package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1 << 20

	// EnvPrefix is the prefix of environment variables read by LoadWithFile.
	EnvPrefix = "FILINGQA_"

	// PathEnv names a config file when no path is passed explicitly.
	PathEnv = "FILINGQA_CONFIG"

	// LocalFile is looked up in the working directory, next to data/ and rag_index/.
	LocalFile = "filingqa.yaml"
)

// LoadWithFile builds the configuration from defaults, a YAML file and
// FILINGQA_* environment variables, in increasing precedence.
//
// The file is the first of: configPath, $FILINGQA_CONFIG, ./filingqa.yaml,
// ~/.config/filingqa/config.yaml. An explicit path that does not exist is
// loaded as empty, so defaults apply. A file that exists must not be
// writable by group or others and must be under 1MB.
//
// Variables map by stripping the prefix and splitting on the first underscore:
//
//	FILINGQA_SERVER_HTTP_PORT       -> server.http_port
//	FILINGQA_GENERATION_API_KEY     -> generation.api_key
//	FILINGQA_SCOPE_REFERENCE_YEAR   -> scope.reference_year
func LoadWithFile(configPath string) (*Config, error) {
	path, err := resolvePath(configPath)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyDefaults(&cfg, k.Exists)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// resolvePath picks the config file to read. It returns explicit unchanged,
// and otherwise the first candidate that exists, or the user config path.
func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(PathEnv); p != "" {
		return p, nil
	}
	if _, err := os.Stat(LocalFile); err == nil {
		return LocalFile, nil
	}
	return DefaultPath()
}

// envKey maps FILINGQA_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	if s == PathEnv {
		return ""
	}
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// DefaultPath returns ~/.config/filingqa/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "filingqa", "config.yaml"), nil
}

// readConfigFile returns the file's bytes, or nil if it does not exist.
// Permissions and size are checked on the open descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if err := checkFileInfo(info); err != nil {
		return nil, fmt.Errorf("config file %s rejected: %w", path, err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return content, nil
}

func checkFileInfo(info os.FileInfo) error {
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
