// Package plugin hosts WASM plugins inside a sandboxed wazero
// runtime: loading compiled modules, tracking their Discord event and
// scheduled-job registrations, and mediating every host call a plugin
// makes back into the bot.
package plugin

import "encoding/json"

// DiscordEventKind identifies which Discord gateway event a plugin is
// being handed.
type DiscordEventKind string

const (
	EventMessageCreate       DiscordEventKind = "message_create"
	EventInteractionCreate   DiscordEventKind = "interaction_create"
	EventThreadCreate        DiscordEventKind = "thread_create"
	EventThreadDelete        DiscordEventKind = "thread_delete"
	EventThreadListSync      DiscordEventKind = "thread_list_sync"
	EventThreadMemberUpdate  DiscordEventKind = "thread_member_update"
	EventThreadMembersUpdate DiscordEventKind = "thread_members_update"
	EventThreadUpdate        DiscordEventKind = "thread_update"
)

// DiscordEvent is the JSON-serializable payload handed to a plugin's
// discord_event export.
type DiscordEvent struct {
	Kind    DiscordEventKind `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
}

// DiscordRequestKind distinguishes a plain REST call from the gateway
// commands that carry no response body, grounded on
// original_source/src/discord/requests.rs's DiscordRequests enum.
type DiscordRequestKind string

const (
	// DiscordRequestKindREST is a raw {method, route, body} REST call,
	// mediated via the Discord client's generic request method. This
	// is the zero value, so existing REST-only requests decode
	// unchanged.
	DiscordRequestKindREST DiscordRequestKind = ""

	// DiscordRequestKindRequestGuildMembers sends gateway op 8
	// (Request Guild Members). No response body.
	DiscordRequestKindRequestGuildMembers DiscordRequestKind = "request_guild_members"

	// DiscordRequestKindUpdateVoiceState sends a Voice State Update
	// gateway command. No response body.
	DiscordRequestKindUpdateVoiceState DiscordRequestKind = "update_voice_state"

	// DiscordRequestKindUpdatePresence sends a Presence Update gateway
	// command. No response body.
	DiscordRequestKindUpdatePresence DiscordRequestKind = "update_presence"

	// DiscordRequestKindRequestSoundboardSounds is not implemented;
	// mediateRequest returns an error without touching the gateway,
	// matching the reference client's own unimplemented-in-Twilight
	// limitation.
	DiscordRequestKindRequestSoundboardSounds DiscordRequestKind = "request_soundboard_sounds"
)

// DiscordRequest is a mediated Discord call a plugin wants the bot to
// perform on its behalf: either a raw REST call (Kind is the zero
// value, Method/Route/Body set) or a gateway command (Kind set,
// GuildID set where the command targets a guild, Body holding the
// command-specific payload).
type DiscordRequest struct {
	Kind    DiscordRequestKind `json:"kind,omitempty"`
	Method  string             `json:"method,omitempty"`
	Route   string             `json:"route,omitempty"`
	GuildID string             `json:"guild_id,omitempty"`
	Body    json.RawMessage    `json:"body,omitempty"`
}

// DiscordResponse is the result of a mediated Discord REST call.
type DiscordResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// InitializationResult is what a plugin's initialization export returns:
// its requested Discord event subscriptions, scheduled jobs, and
// dependency functions.
type InitializationResult struct {
	DiscordEvents       DiscordEventRegistrations `json:"discord_events"`
	ScheduledJobs       []ScheduledJobRequest     `json:"scheduled_jobs"`
	DependencyFunctions []string                  `json:"dependency_functions"`
}

// DiscordEventRegistrations is the set of Discord events a plugin
// wants to receive.
type DiscordEventRegistrations struct {
	MessageCreate       bool                      `json:"message_create"`
	InteractionCreate   InteractionCreateRequests `json:"interaction_create"`
	ThreadCreate        bool                      `json:"thread_create"`
	ThreadDelete        bool                      `json:"thread_delete"`
	ThreadListSync      bool                      `json:"thread_list_sync"`
	ThreadMemberUpdate  bool                      `json:"thread_member_update"`
	ThreadMembersUpdate bool                      `json:"thread_members_update"`
	ThreadUpdate        bool                      `json:"thread_update"`
}

// InteractionCreateRequests is the interaction-related subset of a
// plugin's registration request.
type InteractionCreateRequests struct {
	ApplicationCommands []ApplicationCommandRequest `json:"application_commands"`
	MessageComponents   []string                    `json:"message_components"`
	Modals              []string                    `json:"modals"`
}

// ApplicationCommandRequest is one Discord application command a
// plugin wants registered. InternalID is the plugin's own identifier
// for the command, distinct from the (possibly renamed on collision)
// Discord-facing command name, so the plugin can recognize which of
// its commands fired regardless of renaming — grounded on
// original_source/src/discord/interactions.rs:56, which keys the
// registration store on command_data.name but stores (plugin_id,
// internal_id) as the owner tuple.
type ApplicationCommandRequest struct {
	InternalID string          `json:"internal_id"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data"`
}

// ScheduledJobRequest is one cron-scheduled job a plugin wants
// invoked, keyed by the internal id the host passes to its
// scheduled_job export.
type ScheduledJobRequest struct {
	InternalID string   `json:"internal_id"`
	Crons      []string `json:"crons"`
}

// ApplicationCommandRegistration is a fully resolved command
// registration, after collision renaming, handed to the Discord
// client collaborator.
type ApplicationCommandRegistration struct {
	PluginID string
	ID       string // possibly renamed with a "~N" suffix
	Data     json.RawMessage
}

// ScheduledJobRegistration is a fully resolved scheduled job, handed
// to the job scheduler collaborator.
type ScheduledJobRegistration struct {
	PluginID   string
	InternalID string
	Crons      []string
}
