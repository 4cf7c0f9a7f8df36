package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "hello", F("count", 3))

	entries := logLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	e := entries[0]
	if e["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", e["msg"])
	}
	if e["level"] != "info" {
		t.Errorf("level = %v, want info", e["level"])
	}
	if e["count"] != float64(3) {
		t.Errorf("count = %v, want 3", e["count"])
	}
	if e["timestamp"] == nil {
		t.Error("entry missing timestamp")
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)

	logger.Debug(context.Background(), "dropped")
	logger.Info(context.Background(), "dropped too")
	logger.Warn(context.Background(), "kept")
	logger.Error(context.Background(), "kept too")

	if entries := logLines(t, &buf); len(entries) != 2 {
		t.Errorf("got %d entries at warn level, want 2", len(entries))
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "auth",
		F("token", "hunter2"), F("secret", "s3cret"), F("user", "alice"))

	e := logLines(t, &buf)[0]
	if e["token"] != "[REDACTED]" {
		t.Errorf("token = %v, want [REDACTED]", e["token"])
	}
	if e["secret"] != "[REDACTED]" {
		t.Errorf("secret = %v, want [REDACTED]", e["secret"])
	}
	if e["user"] != "alice" {
		t.Errorf("user = %v, want alice", e["user"])
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Error("raw token value leaked into the log")
	}
}

func TestLogger_WithResource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	scoped := logger.WithResource("productService")
	scoped.Info(context.Background(), "call degraded")
	logger.Info(context.Background(), "unscoped")

	entries := logLines(t, &buf)
	if entries[0]["resource"] != "productService" {
		t.Errorf("scoped resource = %v, want productService", entries[0]["resource"])
	}
	if _, ok := entries[1]["resource"]; ok {
		t.Error("unscoped logger carries a resource tag")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
