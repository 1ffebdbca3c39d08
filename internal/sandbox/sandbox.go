// Package sandbox builds the process-wide wazero runtime and the
// per-plugin module configuration every plugin instance runs under.
package sandbox

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Runtime wraps a single process-wide wazero.Runtime with WASI
// preview1 instantiated once, shared by every plugin.
type Runtime struct {
	wazero.Runtime
}

// New builds the process-wide runtime.
func New(ctx context.Context) (*Runtime, error) {
	runtime := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI preview1: %w", err)
	}

	return &Runtime{Runtime: runtime}, nil
}

// ModuleParams configures a single plugin's sandbox.
type ModuleParams struct {
	Name        string
	WorkspaceDir string
	Environment map[string]string
	LogSink     io.Writer
}

// NewModuleConfig builds the per-plugin wazero.ModuleConfig: the
// plugin's workspace directory mounted at guest "/", its environment
// variables, wall clock / monotonic clock / sleep / random syscalls
// enabled, and stdout/stderr routed into the host logger. No network
// imports are registered; a plugin's only path to the network is the
// mediated discord_request host call.
func NewModuleConfig(params ModuleParams) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName(params.Name).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(params.WorkspaceDir, "/")).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader).
		WithStartFunctions("_initialize")

	if params.LogSink != nil {
		cfg = cfg.WithStdout(params.LogSink).WithStderr(params.LogSink)
	}

	for key, value := range params.Environment {
		cfg = cfg.WithEnv(key, value)
	}

	return cfg
}

// LogWriter adapts a *slog.Logger into an io.Writer at debug level,
// for a plugin's stdout/stderr.
type LogWriter struct {
	Logger   *slog.Logger
	PluginID string
}

func (w LogWriter) Write(p []byte) (int, error) {
	w.Logger.Debug("plugin output", "plugin_id", w.PluginID, "message", string(p))
	return len(p), nil
}
