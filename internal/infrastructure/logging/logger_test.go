package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"json to stdout", config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text to stderr", config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"unknown format falls back to json", config.LoggingConfig{Level: "info", Format: "yaml", Output: "stdout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := New(tt.cfg, "1.0.0"); logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"trace", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestWith_ReturnsDistinctLogger(t *testing.T) {
	logger := Default()
	child := logger.With("instrument", "reader")

	if child == nil {
		t.Fatal("expected non-nil child logger")
	}
	if child == logger {
		t.Error("With() should return a new logger, not the receiver")
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
}

func TestRecordCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer

	handler := newHandler("json", &buf, slog.LevelInfo).WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", "test"),
	})
	logger := &Logger{Logger: slog.New(handler)}

	logger.Info("poll complete", "kind", "shaker")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if record["service"] != serviceName {
		t.Errorf("service = %v, want %q", record["service"], serviceName)
	}
	if record["msg"] != "poll complete" {
		t.Errorf("msg = %v, want 'poll complete'", record["msg"])
	}
	if record["kind"] != "shaker" {
		t.Errorf("kind = %v, want shaker", record["kind"])
	}
}

func TestDebugFilteredAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{Logger: slog.New(newHandler("json", &buf, slog.LevelInfo))}
	logger.Debug("noisy detail")

	if buf.Len() != 0 {
		t.Errorf("debug record should be filtered at info level, got %q", buf.String())
	}
}
