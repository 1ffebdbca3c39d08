package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/celarye/discord-bot/internal/config"
	"github.com/celarye/discord-bot/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	files map[string][]byte // "registry/path" -> content
	fail  map[string]bool
}

func (s *stubFetcher) GetFileFromRegistry(ctx context.Context, registryName, path string) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	key := registryName + "/" + path
	if s.fail[key] {
		return nil, errors.New("stub failure")
	}
	data, ok := s.files[key]
	if !ok {
		return nil, errors.New("not found: " + key)
	}
	return data, nil
}

func manifestJSON(t *testing.T, hostVersionPrefix string) []byte {
	t.Helper()
	m := registry.Manifest{
		Plugins: map[string]registry.ManifestPlugin{
			"greeter": {
				Versions: []registry.ManifestPluginVersion{
					{Version: "1.0.0", CompatibleBotVersion: hostVersionPrefix},
					{Version: "1.1.0", CompatibleBotVersion: hostVersionPrefix, Deprecated: true},
					{Version: "2.0.0", CompatibleBotVersion: "9.9.9"},
				},
			},
		},
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	return data
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		raw      string
		registry string
		name     string
		version  string
	}{
		{"greeter", "celarye/discord-bot-plugins", "greeter", "latest"},
		{"greeter:1.0.0", "celarye/discord-bot-plugins", "greeter", "1.0.0"},
		{"other/registry/greeter:2.0.0", "other/registry", "greeter", "2.0.0"},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			ref, err := registry.ParseRef(tc.raw)
			if err != nil {
				t.Fatalf("ParseRef(%q) error = %v", tc.raw, err)
			}
			if ref.Registry != tc.registry || ref.Name != tc.name || ref.Version != tc.version {
				t.Errorf("ParseRef(%q) = %+v, want {%s %s %s}", tc.raw, ref, tc.registry, tc.name, tc.version)
			}
		})
	}
}

func TestParseRef_Empty(t *testing.T) {
	if _, err := registry.ParseRef(""); err == nil {
		t.Fatal("ParseRef(\"\") expected error, got nil")
	}
}

func TestResolve_LatestSkipsDeprecatedAndIncompatible(t *testing.T) {
	pluginDir := t.TempDir()
	fetcher := &stubFetcher{files: map[string][]byte{
		"celarye/discord-bot-plugins/plugins.json":                  manifestJSON(t, "0.1"),
		"celarye/discord-bot-plugins/greeter/1.0.0/metadata.json":    []byte(`{}`),
		"celarye/discord-bot-plugins/greeter/1.0.0/plugin.wasm":      []byte("wasm-bytes"),
	}}

	resolver := registry.New(fetcher, testLogger())

	cfg := &config.Config{
		Plugins: map[string]config.PluginOptions{
			"greeter": {Plugin: "greeter"},
		},
		PluginOrder: []string{"greeter"},
	}

	available := resolver.Resolve(context.Background(), cfg, pluginDir)
	if len(available) != 1 {
		t.Fatalf("Resolve() returned %d plugins, want 1", len(available))
	}
	if available[0].Version != "1.0.0" {
		t.Errorf("resolved version = %q, want 1.0.0 (latest non-deprecated, compatible)", available[0].Version)
	}

	wasmPath := filepath.Join(pluginDir, "greeter", "1.0.0", "plugin.wasm")
	if _, err := os.Stat(wasmPath); err != nil {
		t.Errorf("expected plugin.wasm to be cached on disk: %v", err)
	}
}

func TestResolve_CacheSkipsDownload(t *testing.T) {
	pluginDir := t.TempDir()
	versionDir := filepath.Join(pluginDir, "greeter", "1.0.0")
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(versionDir, "plugin.wasm"), []byte("cached"), 0o644); err != nil {
		t.Fatalf("write cached wasm: %v", err)
	}

	fetcher := &stubFetcher{files: map[string][]byte{
		"celarye/discord-bot-plugins/plugins.json": manifestJSON(t, "0.1"),
	}}
	resolver := registry.New(fetcher, testLogger())

	cfg := &config.Config{
		Plugins: map[string]config.PluginOptions{
			"greeter": {Plugin: "greeter:1.0.0"},
		},
		PluginOrder: []string{"greeter"},
	}

	available := resolver.Resolve(context.Background(), cfg, pluginDir)
	if len(available) != 1 {
		t.Fatalf("Resolve() returned %d plugins, want 1", len(available))
	}

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	if fetcher.calls != 1 {
		t.Errorf("fetcher was called %d times, want 1 (manifest only, cache hit skips wasm/metadata)", fetcher.calls)
	}
}

func TestResolve_UnknownPluginSkipped(t *testing.T) {
	pluginDir := t.TempDir()
	fetcher := &stubFetcher{files: map[string][]byte{
		"celarye/discord-bot-plugins/plugins.json": manifestJSON(t, "0.1"),
	}}
	resolver := registry.New(fetcher, testLogger())

	cfg := &config.Config{
		Plugins: map[string]config.PluginOptions{
			"ghost": {Plugin: "does-not-exist"},
		},
		PluginOrder: []string{"ghost"},
	}

	available := resolver.Resolve(context.Background(), cfg, pluginDir)
	if len(available) != 0 {
		t.Errorf("Resolve() = %v, want empty for unresolvable plugin", available)
	}
}
