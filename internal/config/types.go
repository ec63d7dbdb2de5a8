package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that loads from YAML and FILINGQA_* env vars.
// Values are Go duration strings ("90s", "2m"); a bare integer is seconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	parsed, err := time.ParseDuration(s)
	if err != nil {
		secs, convErr := strconv.Atoi(s)
		if convErr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		parsed = time.Duration(secs) * time.Second
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds a credential such as the generation API key or the Qdrant
// API key. It never prints or serializes its value.
//
// A value of the form "env:NAME" is read from the environment variable NAME
// at load time, so keys can stay out of filingqa.yaml.
type Secret string

const secretEnvPrefix = "env:"

const redacted = "[REDACTED]"

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return "config.Secret(" + redacted + ")"
}

// Value returns the credential for handing to a client library.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a credential is configured.
func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts a raw credential or an "env:NAME" reference.
// A reference to an unset variable is an error.
func (s *Secret) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if name, ok := strings.CutPrefix(raw, secretEnvPrefix); ok {
		val, set := os.LookupEnv(name)
		if !set {
			return fmt.Errorf("secret references unset environment variable %s", name)
		}
		raw = val
	}
	*s = Secret(raw)
	return nil
}
