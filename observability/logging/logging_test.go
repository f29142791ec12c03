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

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions(Options{Service: "crowdd", Env: "test", Output: &buf, Level: slog.LevelDebug})
	logger.Debug("campaign created", "campaign", 3)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("expected key %q in %v", key, line)
		}
	}
	if line["severity"] != "DEBUG" || line["message"] != "campaign created" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crowdd.log")
	logger := SetupWithOptions(Options{Service: "crowdd", Output: &bytes.Buffer{}, File: path})
	logger.Info("started")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"started"`) {
		t.Fatalf("expected message in log file, got %q", data)
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("authorization", "Bearer abc"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %q", attr.Value.String())
	}
	if attr := MaskField("campaign", "7"); attr.Value.String() != "7" {
		t.Fatalf("allowlisted key must pass through, got %q", attr.Value.String())
	}
	if attr := MaskField("secret", ""); attr.Value.String() != "" {
		t.Fatalf("empty values must pass through")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "verbose": slog.LevelInfo}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q): expected %v got %v", raw, want, got)
		}
	}
}
