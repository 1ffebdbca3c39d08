package discordclient

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/celarye/discord-bot/internal/channels"
	"github.com/celarye/discord-bot/internal/plugin"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, registrations *plugin.RegistrationStore, chans *channels.Bundle) *Client {
	t.Helper()
	c, err := New("fake-token", registrations, chans, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestFanOut_DeliversToEverySubscriber(t *testing.T) {
	registrations := plugin.NewRegistrationStore()
	registrations.Subscribe("greeter", plugin.DiscordEventRegistrations{MessageCreate: true})
	registrations.Subscribe("logger", plugin.DiscordEventRegistrations{MessageCreate: true})

	chans := channels.New()
	c := newTestClient(t, registrations, chans)

	c.fanOut(plugin.EventMessageCreate, &discordgo.MessageCreate{Message: &discordgo.Message{Content: "hi"}})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-chans.Runtime:
			if msg.DiscordEvent == nil {
				t.Fatal("expected a DiscordEvent message")
			}
			seen[msg.DiscordEvent.PluginID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out message")
		}
	}

	if !seen["greeter"] || !seen["logger"] {
		t.Errorf("seen = %+v, want both greeter and logger", seen)
	}
}

func TestFanOut_NoSubscribersNoMessage(t *testing.T) {
	registrations := plugin.NewRegistrationStore()
	chans := channels.New()
	c := newTestClient(t, registrations, chans)

	c.fanOut(plugin.EventMessageCreate, &discordgo.MessageCreate{Message: &discordgo.Message{Content: "hi"}})

	select {
	case msg := <-chans.Runtime:
		t.Fatalf("expected no message, got %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRouteInteraction_UnknownCustomIDLogsAndDrops(t *testing.T) {
	registrations := plugin.NewRegistrationStore()
	chans := channels.New()
	c := newTestClient(t, registrations, chans)

	c.routeInteraction(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		Data: discordgo.MessageComponentInteractionData{CustomID: "nope"},
	}})

	select {
	case msg := <-chans.Runtime:
		t.Fatalf("expected no message for an unowned interaction, got %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandle_EmptyApplicationCommandsNoop(t *testing.T) {
	registrations := plugin.NewRegistrationStore()
	chans := channels.New()
	c := newTestClient(t, registrations, chans)

	// An empty slice must not attempt a network call against Discord.
	c.handle(nil, channels.DiscordClientMessage{RegisterApplicationCommands: []plugin.ApplicationCommandRegistration{}})
}
