package redact

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates the allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)

// Allowlist holds content patterns that are never redacted, such as
// sample keys printed in a filing's exhibits.
type Allowlist struct {
	Regexes   []string `toml:"regexes"`
	StopWords []string `toml:"stopwords"`
}

// LoadAllowlist reads an allowlist file of the form
//
//	[allowlist]
//	regexes = ['''EXAMPLE[A-Z0-9]+''']
//	stopwords = ["example"]
//
// An empty path or a missing file yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}

	var file struct {
		Allowlist Allowlist `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}
	return &file.Allowlist, nil
}
