package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// TestLogger captures JSON log records in memory for assertions
type TestLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	logger *slog.Logger
}

// TestLogEntry is one decoded record
type TestLogEntry struct {
	Level     string
	Message   string
	Component string
	Fields    map[string]interface{}
}

// NewTestLogger returns a debug-level capturing logger
func NewTestLogger() *TestLogger {
	tl := &TestLogger{}
	tl.logger = slog.New(slog.NewJSONHandler(&lockedWriter{tl: tl}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return tl
}

type lockedWriter struct {
	tl *TestLogger
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.tl.mu.Lock()
	defer w.tl.mu.Unlock()
	return w.tl.buffer.Write(p)
}

func (tl *TestLogger) GetLogger() *slog.Logger {
	return tl.logger
}

// GetEntries decodes everything logged so far
func (tl *TestLogger) GetEntries() []TestLogEntry {
	tl.mu.Lock()
	raw := tl.buffer.String()
	tl.mu.Unlock()

	var entries []TestLogEntry
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			continue
		}
		entry := TestLogEntry{Fields: fields}
		entry.Level, _ = fields[slog.LevelKey].(string)
		entry.Message, _ = fields[slog.MessageKey].(string)
		entry.Component, _ = fields["component"].(string)
		entries = append(entries, entry)
	}
	return entries
}

// GetEntriesWithMessage returns entries whose message contains message
func (tl *TestLogger) GetEntriesWithMessage(message string) []TestLogEntry {
	var out []TestLogEntry
	for _, e := range tl.GetEntries() {
		if strings.Contains(e.Message, message) {
			out = append(out, e)
		}
	}
	return out
}

func (tl *TestLogger) Clear() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.buffer.Reset()
}

// AssertLogged fails t unless a record with level and a message containing message exists
func (tl *TestLogger) AssertLogged(t *testing.T, level, message string) {
	t.Helper()
	for _, e := range tl.GetEntries() {
		if strings.EqualFold(e.Level, level) && strings.Contains(e.Message, message) {
			return
		}
	}
	t.Errorf("expected %s log containing %q, got %d entries", level, message, len(tl.GetEntries()))
}

func (tl *TestLogger) AssertNotLogged(t *testing.T, level, message string) {
	t.Helper()
	for _, e := range tl.GetEntries() {
		if strings.EqualFold(e.Level, level) && strings.Contains(e.Message, message) {
			t.Errorf("unexpected %s log containing %q", level, message)
			return
		}
	}
}
