package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewFactory_InvalidConfig(t *testing.T) {
	_, err := NewFactory(&Config{Level: "loud"})
	if err == nil || !strings.Contains(err.Error(), "invalid logging config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestFactory_ComponentLoggers(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.ComponentLevels = map[string]LogLevel{"mailbox": LogLevelDebug}
	f, err := NewFactoryWithWriter(cfg, &buf)
	if err != nil {
		t.Fatalf("NewFactoryWithWriter: %v", err)
	}

	eventlog := f.GetLogger("eventlog")
	if f.GetLogger("eventlog") != eventlog {
		t.Error("expected cached logger")
	}

	eventlog.Debug("hidden")
	eventlog.Info("appended", slog.String("type", "registered"))
	f.GetLogger("mailbox").Debug("taken")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}
	if lines[0]["component"] != "eventlog" || lines[0]["msg"] != "appended" {
		t.Errorf("unexpected first line: %v", lines[0])
	}
	if lines[1]["component"] != "mailbox" || lines[1]["level"] != "DEBUG" {
		t.Errorf("unexpected second line: %v", lines[1])
	}
}

func TestFactory_UpdateLevelAffectsExistingLoggers(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFactoryWithWriter(DefaultConfig(), &buf)
	if err != nil {
		t.Fatalf("NewFactoryWithWriter: %v", err)
	}
	logger := f.GetLogger("transport.http")

	logger.Debug("before")
	f.UpdateLevel("transport.http", LogLevelDebug)
	logger.Debug("after")
	f.UpdateLevel("transport.http", LogLevelError)
	logger.Warn("suppressed")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "after" {
		t.Fatalf("expected only the post-update debug line, got %s", buf.String())
	}
	if got := f.Level("transport.http"); got != LogLevelError {
		t.Errorf("Level = %q, want error", got)
	}
}

func TestFactory_MasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFactoryWithWriter(DefaultConfig(), &buf)
	if err != nil {
		t.Fatalf("NewFactoryWithWriter: %v", err)
	}
	f.GetLogger("admin").Info("request",
		slog.String("authorization", "Bearer abc.def"),
		slog.String("note", "contact ops@example.com"),
	)

	out := buf.String()
	if strings.Contains(out, "abc.def") || strings.Contains(out, "ops@example.com") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, maskedValue) {
		t.Errorf("expected masked field: %s", out)
	}
}

func TestFactory_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	cfg := DefaultConfig()
	cfg.Output = LogOutputFile
	cfg.FilePath = path
	cfg.Metrics.Enabled = false

	f, err := NewFactory(cfg)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	if f.GetMetricsCollector() != nil {
		t.Error("expected no collector when metrics are disabled")
	}
	f.GetLogger("main").Info("started")
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"started"`) {
		t.Errorf("log file missing entry: %s", raw)
	}
}

func TestGlobalFactory(t *testing.T) {
	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if GetGlobalMetricsCollector() != nil {
		t.Error("expected nil collector without a factory")
	}
	if GlobalLevel("registry") != LogLevelInfo {
		t.Error("expected info without a factory")
	}
	UpdateGlobalLevel("registry", LogLevelDebug)
	if GetGlobalLogger("registry") == nil {
		t.Fatal("expected fallback logger")
	}

	var buf bytes.Buffer
	f, err := NewFactoryWithWriter(DefaultConfig(), &buf)
	if err != nil {
		t.Fatalf("NewFactoryWithWriter: %v", err)
	}
	if err := SetGlobalFactory(f); err != nil {
		t.Fatalf("SetGlobalFactory: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown() })

	UpdateGlobalLevel("registry", LogLevelDebug)
	if GlobalLevel("registry") != LogLevelDebug {
		t.Errorf("expected debug, got %q", GlobalLevel("registry"))
	}
	GetGlobalLogger("registry").Debug("seeded")
	if !strings.Contains(buf.String(), "seeded") {
		t.Errorf("global logger did not write: %s", buf.String())
	}
	if GetGlobalMetricsCollector() == nil {
		t.Error("expected collector from default config")
	}
}
