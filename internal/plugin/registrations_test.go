package plugin

import (
	"encoding/json"
	"testing"
)

func TestRegisterApplicationCommand_CollisionRenaming(t *testing.T) {
	store := NewRegistrationStore()

	data, _ := json.Marshal(map[string]string{"name": "greet", "description": "say hi"})

	first, err := store.RegisterApplicationCommand("plugin-a", "cmd-1", ApplicationCommandRequest{Name: "greet", Data: data})
	if err != nil {
		t.Fatalf("RegisterApplicationCommand() error = %v", err)
	}
	if first.ID != "greet" {
		t.Errorf("first.ID = %q, want greet", first.ID)
	}

	second, err := store.RegisterApplicationCommand("plugin-b", "cmd-1", ApplicationCommandRequest{Name: "greet", Data: data})
	if err != nil {
		t.Fatalf("RegisterApplicationCommand() error = %v", err)
	}
	if second.ID != "greet~1" {
		t.Errorf("second.ID = %q, want greet~1", second.ID)
	}

	var patched map[string]string
	if err := json.Unmarshal(second.Data, &patched); err != nil {
		t.Fatalf("unmarshal patched data: %v", err)
	}
	if patched["name"] != "greet~1" {
		t.Errorf("patched name = %q, want greet~1", patched["name"])
	}

	third, err := store.RegisterApplicationCommand("plugin-c", "cmd-1", ApplicationCommandRequest{Name: "greet", Data: data})
	if err != nil {
		t.Fatalf("RegisterApplicationCommand() error = %v", err)
	}
	if third.ID != "greet~2" {
		t.Errorf("third.ID = %q, want greet~2", third.ID)
	}
}

func TestCommandOwner(t *testing.T) {
	store := NewRegistrationStore()
	data, _ := json.Marshal(map[string]string{"name": "ping"})

	if _, err := store.RegisterApplicationCommand("plugin-a", "internal-1", ApplicationCommandRequest{Name: "ping", Data: data}); err != nil {
		t.Fatalf("RegisterApplicationCommand() error = %v", err)
	}

	pluginID, internalID, ok := store.CommandOwner("ping")
	if !ok {
		t.Fatal("CommandOwner() ok = false, want true")
	}
	if pluginID != "plugin-a" || internalID != "internal-1" {
		t.Errorf("CommandOwner() = (%q, %q), want (plugin-a, internal-1)", pluginID, internalID)
	}

	if _, _, ok := store.CommandOwner("does-not-exist"); ok {
		t.Error("CommandOwner() for unknown command ok = true, want false")
	}
}

func TestMessageComponentOwner_LastWriterWins(t *testing.T) {
	store := NewRegistrationStore()

	store.Subscribe("plugin-a", DiscordEventRegistrations{
		InteractionCreate: InteractionCreateRequests{MessageComponents: []string{"confirm-button"}},
	})
	store.Subscribe("plugin-b", DiscordEventRegistrations{
		InteractionCreate: InteractionCreateRequests{MessageComponents: []string{"confirm-button"}},
	})

	owner, ok := store.MessageComponentOwner("confirm-button")
	if !ok {
		t.Fatal("MessageComponentOwner() ok = false, want true")
	}
	if owner != "plugin-b" {
		t.Errorf("owner = %q, want plugin-b (last writer wins)", owner)
	}
}

func TestSubscribers_PreservesRegistrationOrder(t *testing.T) {
	store := NewRegistrationStore()

	store.Subscribe("zebra", DiscordEventRegistrations{MessageCreate: true})
	store.Subscribe("apple", DiscordEventRegistrations{MessageCreate: true})
	store.Subscribe("mango", DiscordEventRegistrations{MessageCreate: true})

	subscribers := store.Subscribers(EventMessageCreate)
	want := []string{"zebra", "apple", "mango"}
	if len(subscribers) != len(want) {
		t.Fatalf("Subscribers() = %v, want %v", subscribers, want)
	}
	for i := range want {
		if subscribers[i] != want[i] {
			t.Errorf("Subscribers()[%d] = %q, want %q", i, subscribers[i], want[i])
		}
	}
}

func TestHasDependencyFunction(t *testing.T) {
	store := NewRegistrationStore()
	store.RegisterDependencyFunctions("plugin-a", []string{"translate", "summarize"})

	if !store.HasDependencyFunction("plugin-a", "translate") {
		t.Error("expected plugin-a to have translate registered")
	}
	if store.HasDependencyFunction("plugin-a", "not-registered") {
		t.Error("expected plugin-a to not have not-registered")
	}
	if store.HasDependencyFunction("plugin-b", "translate") {
		t.Error("expected plugin-b (never registered) to have no dependency functions")
	}
}
