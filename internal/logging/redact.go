package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/filingqa/internal/config"
)

const (
	redacted         = "[REDACTED]"
	maxLoggedTextLen = 160
)

// Secret logs only the length of a configured credential.
func Secret(key string, val config.Secret) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val.Value()))+"]")
}

// Text logs free text such as a question or passage, cut to a bounded
// number of runes.
func Text(key, val string) zap.Field {
	if utf8.RuneCountInString(val) > maxLoggedTextLen {
		val = string([]rune(val)[:maxLoggedTextLen]) + "…"
	}
	return zap.String(key, val)
}

// redactor holds the compiled rules shared by every clone of an encoder.
type redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	r := &redactor{keys: make(map[string]struct{}, len(cfg.Fields))}
	if !cfg.Enabled {
		return r, nil
	}
	for _, f := range cfg.Fields {
		r.keys[strings.ToLower(f)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *redactor) hides(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

func (r *redactor) scrub(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// RedactingEncoder masks fields whose key is sensitive and rewrites
// string values and messages matching a secret pattern.
type RedactingEncoder struct {
	zapcore.Encoder
	rules *redactor
}

// NewRedactingEncoder wraps base with the rules in cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	rules, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, rules: rules}, nil
}

func (e *RedactingEncoder) AddString(key, val string) {
	if e.rules.hides(key) {
		val = redacted
	} else {
		val = e.rules.scrub(val)
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.rules.hides(key) {
		val = []byte(redacted)
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.rules.hides(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.rules.hides(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// EncodeEntry adds call-site fields through the masking methods above;
// handing them to the wrapped encoder would bypass them.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	enc := &RedactingEncoder{Encoder: e.Encoder.Clone(), rules: e.rules}
	for _, f := range fields {
		f.AddTo(enc)
	}
	ent.Message = e.rules.scrub(ent.Message)
	return enc.Encoder.EncodeEntry(ent, nil)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), rules: e.rules}
}
