package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

// TestLogger is a Logger that records entries at every level, including
// trace, so tests can assert on what the pipeline reported.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns a recording logger.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

// Entries returns everything logged so far.
func (t *TestLogger) Entries() []observer.LoggedEntry {
	return t.logs.All()
}

// Messages returns the messages logged at level, in order.
func (t *TestLogger) Messages(level zapcore.Level) []string {
	var out []string
	for _, e := range t.logs.All() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Reset drops recorded entries.
func (t *TestLogger) Reset() {
	t.logs.TakeAll()
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) bool {
	tb.Helper()
	for _, m := range t.Messages(level) {
		if strings.Contains(m, msgContains) {
			return true
		}
	}
	return assert.Fail(tb, "log entry not found",
		"no %v entry containing %q; got %v", level, msgContains, t.Messages(level))
}

// AssertField fails tb unless an entry with message msg carries key=expected.
// Context fields such as query.id and document are included.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected any) bool {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && assert.ObjectsAreEqual(expected, v) {
			return true
		}
	}
	return assert.Fail(tb, "log field not found", "field %q=%v not found on %q", key, expected, msg)
}
