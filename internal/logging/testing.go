package logging

import (
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records entries at Trace and above for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{Logger: FromZap(zap.New(core)), observed: observed}
}

func (t *TestLogger) All() []observer.LoggedEntry { return t.observed.All() }

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

func (t *TestLogger) Reset() { t.observed.TakeAll() }

func (t *TestLogger) matching(level zapcore.Level, msg string) int {
	return t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).Len()
}

// AssertLogged fails unless an entry at level mentions msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.matching(level, msg) == 0 {
		tb.Errorf("expected %v log containing %q, got %+v", level, msg, t.observed.All())
	}
}

// AssertNotLogged fails if an entry at level mentions msg.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := t.matching(level, msg); n > 0 {
		tb.Errorf("unexpected %v log containing %q (%d entries)", level, msg, n)
	}
}

// AssertField fails unless some entry mentioning msg carries key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want interface{}) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		if got, ok := entry.ContextMap()[key]; ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("field %q=%v not found on %q", key, want, msg)
}
