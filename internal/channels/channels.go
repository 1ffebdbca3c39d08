// Package channels wires the bounded message channels that connect
// the Discord client, the job scheduler, and the plugin runtime.
package channels

import "github.com/celarye/discord-bot/internal/plugin"

// Capacities chosen to absorb event bursts (a gateway resume replaying
// queued events, a cron tick firing many jobs at once) without
// unbounded growth. When Runtime is full, the Discord client and the
// job scheduler drop the event or tick and log a warning rather than
// block; senders of mediated requests wait for room instead.
const (
	RuntimeCapacity       = 400
	DiscordClientCapacity = 200
)

// RuntimeMessage is sent to the plugin runtime's single-consumer
// event loop.
type RuntimeMessage struct {
	// Exactly one of DiscordEvent or ScheduledJob is set.
	DiscordEvent *RuntimeDiscordEvent
	ScheduledJob *RuntimeScheduledJob
}

// RuntimeDiscordEvent asks the runtime to deliver a Discord event to
// one plugin.
type RuntimeDiscordEvent struct {
	PluginID string
	Event    plugin.DiscordEvent
}

// RuntimeScheduledJob asks the runtime to invoke one plugin's
// scheduled-job handler.
type RuntimeScheduledJob struct {
	PluginID   string
	InternalID string
}

// DiscordClientMessage is sent to the Discord client collaborator.
type DiscordClientMessage struct {
	Request                     *DiscordRequestMessage
	RegisterApplicationCommands []plugin.ApplicationCommandRegistration
}

// DiscordRequestMessage carries a mediated REST call from a plugin,
// with a reply channel for the result.
type DiscordRequestMessage struct {
	Request plugin.DiscordRequest
	Reply   chan DiscordRequestResult
}

// DiscordRequestResult is the outcome of a mediated Discord REST call.
type DiscordRequestResult struct {
	Response plugin.DiscordResponse
	Err      error
}

// Bundle groups the two channels the runtime, Discord client, and job
// scheduler use to talk to each other. Scheduled-job ticks and Discord
// events both flow into Runtime; only outbound Discord requests and
// command registrations flow into DiscordClient.
type Bundle struct {
	Runtime       chan RuntimeMessage
	DiscordClient chan DiscordClientMessage
}

// New builds a Bundle with the standard capacities.
func New() *Bundle {
	return &Bundle{
		Runtime:       make(chan RuntimeMessage, RuntimeCapacity),
		DiscordClient: make(chan DiscordClientMessage, DiscordClientCapacity),
	}
}
