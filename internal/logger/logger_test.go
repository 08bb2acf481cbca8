package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBuildJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")

	l, err := build(true, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Debug("hidden")
	l.Info("turn graded", zap.Duration("took", 1500*time.Millisecond))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected debug entry to be dropped, got %d lines", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["step"] != "turn graded" || entry["level"] != "info" || entry["took"] != "1.5s" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestBuildDebugConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")

	l, err := build(false, true, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Debug("phase transition")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "debug") || !strings.Contains(string(data), "phase transition") {
		t.Fatalf("expected a console debug entry, got %q", data)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(false, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
