package config_test

import (
	"testing"

	"github.com/celarye/discord-bot/internal/config"
)

func TestParsePermissions(t *testing.T) {
	perms, err := config.ParsePermissions([]string{
		"DiscordEvent.MessageCreate",
		"Shutdown",
	})
	if err != nil {
		t.Fatalf("ParsePermissions() error = %v", err)
	}

	if !perms.Has(config.PermDiscordEventMessageCreate) {
		t.Error("expected PermDiscordEventMessageCreate to be set")
	}
	if !perms.Has(config.PermShutdown) {
		t.Error("expected PermShutdown to be set")
	}
	if perms.Has(config.PermDependencyFunctions) {
		t.Error("expected PermDependencyFunctions to be unset")
	}
}

func TestParsePermissions_Unknown(t *testing.T) {
	if _, err := config.ParsePermissions([]string{"NotReal"}); err == nil {
		t.Fatal("ParsePermissions() expected error for unknown permission, got nil")
	}
}

func TestParsePermissions_Empty(t *testing.T) {
	perms, err := config.ParsePermissions(nil)
	if err != nil {
		t.Fatalf("ParsePermissions() error = %v", err)
	}
	if perms != 0 {
		t.Errorf("ParsePermissions(nil) = %d, want 0", perms)
	}
}
