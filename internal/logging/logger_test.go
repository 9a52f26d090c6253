// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Development: true})
	if err != nil {
		t.Fatalf("New(dev) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Level: "warn"})
	if err != nil {
		t.Fatalf("New(prod) error = %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("expected warn to be enabled")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewWritesLogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "harvest.log")
	logger, err := New(Config{OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("written to file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Fatalf("log file missing entry: %q", data)
	}
}

func TestNewDevelopmentLogFileHasNoColor(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "harvest.log")
	logger, err := New(Config{Development: true, OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Warn("plain level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Fatalf("log file contains ANSI escapes: %q", data)
	}
	if !strings.Contains(string(data), "WARN") || !strings.Contains(string(data), "plain level") {
		t.Fatalf("log file missing entry: %q", data)
	}
}

func TestHasOutputs(t *testing.T) {
	t.Parallel()

	if hasOutputs(nil) || hasOutputs([]string{"  "}) {
		t.Fatal("blank paths are not outputs")
	}
	if !hasOutputs([]string{"", "run.log"}) {
		t.Fatal("expected run.log to count as an output")
	}
}
