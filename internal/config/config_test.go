package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/celarye/discord-bot/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
id: test-bot
plugins:
  greeter:
    plugin: "greeter:1.0.0"
    permissions: []
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTPClientTimeoutSeconds != 30 {
		t.Errorf("HTTPClientTimeoutSeconds = %d, want 30", cfg.HTTPClientTimeoutSeconds)
	}
	if cfg.PluginDirectory != "./plugins" {
		t.Errorf("PluginDirectory = %q, want ./plugins", cfg.PluginDirectory)
	}
	if cfg.Logging.Rotation != "DAILY" {
		t.Errorf("Logging.Rotation = %q, want DAILY", cfg.Logging.Rotation)
	}
}

func TestLoad_OrderPreserved(t *testing.T) {
	path := writeConfig(t, `
id: test-bot
plugins:
  zebra:
    plugin: "zebra:1.0.0"
    permissions: []
  apple:
    plugin: "apple:1.0.0"
    permissions: []
  mango:
    plugin: "mango:1.0.0"
    permissions: []
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"zebra", "apple", "mango"}
	got := cfg.OrderedPluginIDs()
	if len(got) != len(want) {
		t.Fatalf("OrderedPluginIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("OrderedPluginIDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_UnknownPermissionRejected(t *testing.T) {
	path := writeConfig(t, `
id: test-bot
plugins:
  greeter:
    plugin: "greeter:1.0.0"
    permissions: ["NotARealPermission"]
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("Load() expected error for unknown permission, got nil")
	}
}

func TestLoad_InvalidRotation(t *testing.T) {
	path := writeConfig(t, `
id: test-bot
logging:
  rotation: WEEKLY
plugins: {}
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("Load() expected error for invalid rotation, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestCacheFor_PerPluginOverride(t *testing.T) {
	path := writeConfig(t, `
id: test-bot
cache: true
plugins:
  greeter:
    plugin: "greeter:1.0.0"
    cache: false
    permissions: []
  other:
    plugin: "other:1.0.0"
    permissions: []
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CacheFor("greeter") {
		t.Error("CacheFor(greeter) = true, want false (per-plugin override)")
	}
	if !cfg.CacheFor("other") {
		t.Error("CacheFor(other) = false, want true (host default)")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_ID", "expanded-id")

	path := writeConfig(t, `
id: $TEST_BOT_ID
plugins: {}
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ID != "expanded-id" {
		t.Errorf("ID = %q, want expanded-id", cfg.ID)
	}
}
