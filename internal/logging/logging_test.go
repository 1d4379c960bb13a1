package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := Setup(Options{Level: "warn", Format: "json", Out: &buf})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer closer.Close()

	log.Info("hidden")
	log.Warn("shown", "component", "test")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["msg"] != "shown" || rec["component"] != "test" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestSetupFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcs.log")
	var buf bytes.Buffer
	log, closer, err := Setup(Options{File: path, Out: &buf})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.Info("to file")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") || !strings.Contains(buf.String(), "to file") {
		t.Fatalf("record missing: file=%q out=%q", data, buf.String())
	}
}

func TestSetupRejectsUnknown(t *testing.T) {
	if _, _, err := Setup(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, _, err := Setup(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := NewContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatalf("logger not stored in context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
}
