// Package logging wires up the host's two log sinks (stdout and a
// rotating file) into a single slog.Logger, per the CLI log parameters
// described in the configuration surface.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/celarye/discord-bot/internal/config"
)

// New builds the host logger from the logging section of the config,
// plus a cleanup function that must be called on shutdown to stop the
// rotation ticker and flush the file sink.
func New(params config.LoggingConfig) (*slog.Logger, func() error, error) {
	stdoutLevel, err := parseLevel(params.StdoutLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("stdout log level: %w", err)
	}
	fileLevel, err := parseLevel(params.FileLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("file log level: %w", err)
	}

	var stdoutHandler slog.Handler
	if params.StdoutANSI {
		stdoutHandler = tint.NewHandler(os.Stdout, &tint.Options{Level: stdoutLevel})
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: stdoutLevel})
	}

	if params.Directory == "" {
		return slog.New(stdoutHandler), func() error { return nil }, nil
	}

	if err := os.MkdirAll(params.Directory, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	filename := filepath.Join(params.Directory, params.FilenamePrefix+params.FilenameSuffix)
	rotator := &lumberjack.Logger{
		Filename:   filename,
		MaxAge:     params.MaxRetainedFiles,
		MaxBackups: params.MaxRetainedFiles,
		Compress:   true,
	}

	var fileHandler slog.Handler
	if params.FileANSI {
		fileHandler = tint.NewHandler(rotator, &tint.Options{Level: fileLevel, NoColor: false})
	} else {
		fileHandler = slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: fileLevel})
	}

	stop := startIntervalRotation(rotator, params.Rotation)

	logger := slog.New(&fanoutHandler{handlers: []slog.Handler{stdoutHandler, fileHandler}})

	cleanup := func() error {
		stop()
		return rotator.Close()
	}

	return logger, cleanup, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}

// startIntervalRotation forces the lumberjack rotator to roll onto a
// new file on the named interval, since lumberjack itself only rotates
// by size or MaxAge rather than a fixed clock boundary. Returns a
// function that stops the ticker; a no-op for NEVER.
func startIntervalRotation(rotator *lumberjack.Logger, rotation string) func() {
	var interval time.Duration
	switch rotation {
	case "MINUTELY":
		interval = time.Minute
	case "HOURLY":
		interval = time.Hour
	case "DAILY":
		interval = 24 * time.Hour
	case "NEVER":
		return func() {}
	default:
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "log rotation goroutine panicked: %v\n", r)
			}
		}()
		for {
			select {
			case <-ticker.C:
				_ = rotator.Rotate()
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

// fanoutHandler duplicates log records to every wrapped handler at
// its own level. There is no multi-sink handler in the standard
// library or in the pack's ecosystem (tint/lumberjack each produce a
// single handler), so this is a small stdlib-only bridge — the actual
// sinks above are still library-backed.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
