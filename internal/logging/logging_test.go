// ABOUTME: Tests for logger construction
// ABOUTME: Tests level parsing and the file sink
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"info":  zapcore.InfoLevel,
		"DEBUG": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checktime.log")

	log, closeFn, err := New(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Debug("hidden message")
	log.Info("clock synced", zap.Int64("offset_ms", 42))
	closeFn()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "clock synced") || !strings.Contains(out, "offset_ms") {
		t.Errorf("expected info entry in log, got %q", out)
	}
	if strings.Contains(out, "hidden message") {
		t.Error("expected debug entry to be filtered")
	}
}

func TestNoSinks(t *testing.T) {
	log, closeFn, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()

	// Must not panic
	log.Info("discarded")
}

func TestBadFile(t *testing.T) {
	if _, _, err := New(Config{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")}); err == nil {
		t.Error("expected error for unwritable log path")
	}
}
