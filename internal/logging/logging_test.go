package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/celarye/discord-bot/internal/config"
	"github.com/celarye/discord-bot/internal/logging"
)

func TestNew_StdoutOnly(t *testing.T) {
	logger, cleanup, err := logging.New(config.LoggingConfig{
		StdoutLevel: "info",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cleanup()

	if logger == nil {
		t.Fatal("New() returned nil logger")
	}
}

func TestNew_WithFile(t *testing.T) {
	dir := t.TempDir()

	logger, cleanup, err := logging.New(config.LoggingConfig{
		StdoutLevel:      "info",
		FileLevel:        "debug",
		Directory:        dir,
		Rotation:         "NEVER",
		MaxRetainedFiles: 3,
		FilenamePrefix:   "bot",
		FilenameSuffix:   ".log",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cleanup()

	logger.Info("hello", "key", "value")

	if err := cleanup(); err != nil {
		t.Fatalf("cleanup() error = %v", err)
	}

	path := filepath.Join(dir, "bot.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain data")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, _, err := logging.New(config.LoggingConfig{StdoutLevel: "bogus"}); err == nil {
		t.Fatal("New() expected error for invalid stdout level, got nil")
	}
}

func TestNew_IntervalRotationNever(t *testing.T) {
	dir := t.TempDir()

	_, cleanup, err := logging.New(config.LoggingConfig{
		StdoutLevel:    "info",
		FileLevel:      "info",
		Directory:      dir,
		Rotation:       "NEVER",
		FilenamePrefix: "bot",
		FilenameSuffix: ".log",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup() error = %v", err)
	}
}
