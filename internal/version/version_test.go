package version_test

import (
	"runtime"
	"strings"
	"testing"

	"github.com/celarye/discord-bot/internal/version"
)

func TestInfo(t *testing.T) {
	info := version.Info()

	expected := []string{"discord-bot", "commit:", "built:"}
	for _, s := range expected {
		if !strings.Contains(info, s) {
			t.Errorf("Info() = %q, expected it to contain %q", info, s)
		}
	}

	if !strings.Contains(info, runtime.Version()) {
		t.Errorf("Info() = %q, expected it to contain Go version %q", info, runtime.Version())
	}
}

func TestShort(t *testing.T) {
	short := version.Short()
	if short != version.Version {
		t.Errorf("Short() = %q, want %q (Version)", short, version.Version)
	}
}

func TestFull(t *testing.T) {
	full := version.Full()

	expectedKeys := []string{"version", "git_commit", "build_time", "go_version", "os", "arch"}
	for _, key := range expectedKeys {
		if _, ok := full[key]; !ok {
			t.Errorf("Full() missing key %q", key)
		}
	}

	if len(full) != len(expectedKeys) {
		t.Errorf("Full() has %d keys, expected %d", len(full), len(expectedKeys))
	}
}

func TestCompatiblePrefix(t *testing.T) {
	tests := []struct {
		name     string
		compat   string
		hostVer  string
		expected bool
	}{
		{"exact prefix", "0.1", "0.1.0", true},
		{"full match", "0.1.0", "0.1.0", true},
		{"mismatched minor", "0.2", "0.1.0", false},
		{"longer than host version", "0.1.0-extra", "0.1.0", false},
		{"empty compat matches anything", "", "0.1.0", true},
	}

	original := version.Version
	defer func() { version.Version = original }()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			version.Version = tc.hostVer
			if got := version.CompatiblePrefix(tc.compat); got != tc.expected {
				t.Errorf("CompatiblePrefix(%q) with host version %q = %v, want %v",
					tc.compat, tc.hostVer, got, tc.expected)
			}
		})
	}
}
