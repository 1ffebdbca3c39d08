package sandbox_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/celarye/discord-bot/internal/sandbox"
)

func TestLogWriter_Write(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	w := sandbox.LogWriter{Logger: logger, PluginID: "greeter"}
	n, err := w.Write([]byte("hello from the guest"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len("hello from the guest") {
		t.Errorf("Write() n = %d, want %d", n, len("hello from the guest"))
	}

	out := buf.String()
	if !strings.Contains(out, "greeter") || !strings.Contains(out, "hello from the guest") {
		t.Errorf("log output = %q, want it to contain plugin id and message", out)
	}
}

func TestNewModuleConfig_NoPanic(t *testing.T) {
	cfg := sandbox.NewModuleConfig(sandbox.ModuleParams{
		Name:         "greeter",
		WorkspaceDir: t.TempDir(),
		Environment:  map[string]string{"KEY": "value"},
		LogSink:      io.Discard,
	})
	if cfg == nil {
		t.Fatal("NewModuleConfig() returned nil")
	}
}
