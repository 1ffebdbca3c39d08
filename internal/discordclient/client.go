// Package discordclient wraps the Discord gateway/REST session: it
// fans inbound gateway events out to every plugin subscribed to them,
// mediates plugins' outbound REST requests, and reconciles the bot's
// registered application commands.
package discordclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/celarye/discord-bot/internal/channels"
	"github.com/celarye/discord-bot/internal/plugin"
)

// Client owns the Discord gateway session and the background loop
// that serves channels.DiscordClientMessage.
type Client struct {
	session       *discordgo.Session
	registrations *plugin.RegistrationStore
	chans         *channels.Bundle
	logger        *slog.Logger
}

// New builds a Client authenticated with token. It registers gateway
// event handlers but does not open the connection; call Start for
// that.
func New(token string, registrations *plugin.RegistrationStore, chans *channels.Bundle, logger *slog.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discordgo session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuilds |
		discordgo.IntentGuildMessageTyping

	c := &Client{session: session, registrations: registrations, chans: chans, logger: logger}
	c.registerHandlers()

	return c, nil
}

func (c *Client) registerHandlers() {
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
		c.fanOut(plugin.EventMessageCreate, e)
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.InteractionCreate) {
		c.routeInteraction(e)
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadCreate) {
		c.fanOut(plugin.EventThreadCreate, e)
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadDelete) {
		c.fanOut(plugin.EventThreadDelete, e)
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadListSync) {
		c.fanOut(plugin.EventThreadListSync, e)
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadMemberUpdate) {
		c.fanOut(plugin.EventThreadMemberUpdate, e)
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadMembersUpdate) {
		c.fanOut(plugin.EventThreadMembersUpdate, e)
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadUpdate) {
		c.fanOut(plugin.EventThreadUpdate, e)
	})
}

// fanOut delivers event to every plugin subscribed to kind, in the
// registration order recorded at initialization time.
func (c *Client) fanOut(kind plugin.DiscordEventKind, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal discord event", "kind", kind, "error", err)
		return
	}

	for _, pluginID := range c.registrations.Subscribers(kind) {
		msg := channels.RuntimeMessage{
			DiscordEvent: &channels.RuntimeDiscordEvent{
				PluginID: pluginID,
				Event:    plugin.DiscordEvent{Kind: kind, Payload: payload},
			},
		}
		select {
		case c.chans.Runtime <- msg:
		default:
			c.logger.Warn("runtime channel full, dropping discord event", "plugin_id", pluginID, "kind", kind)
		}
	}
}

// routeInteraction dispatches an interaction to the single plugin
// that owns the matching application command, message component, or
// modal custom id, rather than fanning out to every subscriber.
func (c *Client) routeInteraction(e *discordgo.InteractionCreate) {
	var pluginID string
	var ok bool

	switch e.Type {
	case discordgo.InteractionApplicationCommand, discordgo.InteractionApplicationCommandAutocomplete:
		pluginID, _, ok = c.registrations.CommandOwner(e.ApplicationCommandData().Name)
	case discordgo.InteractionMessageComponent:
		pluginID, ok = c.registrations.MessageComponentOwner(e.MessageComponentData().CustomID)
	case discordgo.InteractionModalSubmit:
		pluginID, ok = c.registrations.ModalOwner(e.ModalSubmitData().CustomID)
	}

	if !ok {
		c.logger.Warn("interaction has no owning plugin", "type", e.Type)
		return
	}

	payload, err := json.Marshal(e.Interaction)
	if err != nil {
		c.logger.Error("failed to marshal interaction", "error", err)
		return
	}

	msg := channels.RuntimeMessage{
		DiscordEvent: &channels.RuntimeDiscordEvent{
			PluginID: pluginID,
			Event:    plugin.DiscordEvent{Kind: plugin.EventInteractionCreate, Payload: payload},
		},
	}
	select {
	case c.chans.Runtime <- msg:
	default:
		c.logger.Warn("runtime channel full, dropping interaction", "plugin_id", pluginID)
	}
}

// Start opens the gateway connection.
func (c *Client) Start(_ context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway session: %w", err)
	}
	return nil
}

// Run drains channels.DiscordClientMessage until ctx is canceled,
// mediating plugin REST requests and reconciling application command
// registrations.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case msg := <-c.chans.DiscordClient:
			c.handle(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handle(_ context.Context, msg channels.DiscordClientMessage) {
	switch {
	case msg.Request != nil:
		c.mediateRequest(msg.Request)
	case msg.RegisterApplicationCommands != nil:
		c.reconcileCommands(msg.RegisterApplicationCommands)
	}
}

// mediateRequest performs a plugin's mediated Discord call: either a
// raw REST call or one of the gateway commands that return no
// response body, grounded on
// original_source/src/discord/requests.rs's DiscordRequests dispatch.
func (c *Client) mediateRequest(req *channels.DiscordRequestMessage) {
	switch req.Request.Kind {
	case plugin.DiscordRequestKindRequestSoundboardSounds:
		req.Reply <- channels.DiscordRequestResult{
			Err: fmt.Errorf("request_soundboard_sounds is not implemented"),
		}
	case plugin.DiscordRequestKindRequestGuildMembers:
		c.requestGuildMembers(req)
	case plugin.DiscordRequestKindUpdateVoiceState:
		c.updateVoiceState(req)
	case plugin.DiscordRequestKindUpdatePresence:
		c.updatePresence(req)
	default:
		c.mediateRESTRequest(req)
	}
}

// mediateRESTRequest performs a plugin's raw Discord REST request via
// the session's generic request method, so plugins never hold Discord
// credentials or reach the network directly.
func (c *Client) mediateRESTRequest(req *channels.DiscordRequestMessage) {
	var body any
	if len(req.Request.Body) > 0 {
		body = req.Request.Body
	}

	response, err := c.session.RequestWithBucketID(req.Request.Method, req.Request.Route, body, req.Request.Route)
	if err != nil {
		req.Reply <- channels.DiscordRequestResult{Err: err}
		return
	}

	req.Reply <- channels.DiscordRequestResult{
		Response: plugin.DiscordResponse{StatusCode: 200, Body: response},
	}
}

// requestGuildMembersBody is the command-specific payload carried in
// DiscordRequest.Body for DiscordRequestKindRequestGuildMembers,
// mirroring twilight's RequestGuildMembersInfo shape.
type requestGuildMembersBody struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
	Presences bool     `json:"presences,omitempty"`
}

// requestGuildMembers sends gateway op 8 (Request Guild Members).
// Discord never answers this over the REST response channel; matching
// guild-member chunks arrive later as ordinary gateway events, so the
// reply here carries no body.
func (c *Client) requestGuildMembers(req *channels.DiscordRequestMessage) {
	var body requestGuildMembersBody
	if err := json.Unmarshal(req.Request.Body, &body); err != nil {
		req.Reply <- channels.DiscordRequestResult{Err: fmt.Errorf("decode request_guild_members body: %w", err)}
		return
	}

	var err error
	if len(body.UserIDs) > 0 {
		err = c.session.RequestGuildMembersList(req.Request.GuildID, body.UserIDs, body.Limit, body.Nonce, body.Presences)
	} else {
		err = c.session.RequestGuildMembers(req.Request.GuildID, body.Query, body.Limit, body.Nonce, body.Presences)
	}
	if err != nil {
		req.Reply <- channels.DiscordRequestResult{Err: err}
		return
	}
	req.Reply <- channels.DiscordRequestResult{}
}

// updateVoiceStateBody is the command-specific payload for
// DiscordRequestKindUpdateVoiceState.
type updateVoiceStateBody struct {
	ChannelID string `json:"channel_id"`
	SelfMute  bool   `json:"self_mute"`
	SelfDeaf  bool   `json:"self_deaf"`
}

// updateVoiceState sends a Voice State Update gateway command without
// establishing a voice UDP connection, matching the reference client's
// fire-and-forget use of the gateway op. No response body.
func (c *Client) updateVoiceState(req *channels.DiscordRequestMessage) {
	var body updateVoiceStateBody
	if err := json.Unmarshal(req.Request.Body, &body); err != nil {
		req.Reply <- channels.DiscordRequestResult{Err: fmt.Errorf("decode update_voice_state body: %w", err)}
		return
	}

	if err := c.session.ChannelVoiceJoinManual(req.Request.GuildID, body.ChannelID, body.SelfMute, body.SelfDeaf); err != nil {
		req.Reply <- channels.DiscordRequestResult{Err: err}
		return
	}
	req.Reply <- channels.DiscordRequestResult{}
}

// updatePresence sends a Presence Update gateway command. No response
// body.
func (c *Client) updatePresence(req *channels.DiscordRequestMessage) {
	var status discordgo.UpdateStatusData
	if err := json.Unmarshal(req.Request.Body, &status); err != nil {
		req.Reply <- channels.DiscordRequestResult{Err: fmt.Errorf("decode update_presence body: %w", err)}
		return
	}

	if err := c.session.UpdateStatusComplex(status); err != nil {
		req.Reply <- channels.DiscordRequestResult{Err: err}
		return
	}
	req.Reply <- channels.DiscordRequestResult{}
}

// reconcileCommands registers the bulk set of application commands
// plugins requested for this run. The reference host defers full
// diffing against Discord's existing registered set (additions and
// removals) to a future pass; this bulk-overwrite already removes
// commands no plugin re-registers on this run.
func (c *Client) reconcileCommands(registrations []plugin.ApplicationCommandRegistration) {
	if len(registrations) == 0 {
		return
	}

	commands := make([]*discordgo.ApplicationCommand, 0, len(registrations))
	for _, registration := range registrations {
		var cmd discordgo.ApplicationCommand
		if err := json.Unmarshal(registration.Data, &cmd); err != nil {
			c.logger.Error("failed to decode application command", "plugin_id", registration.PluginID, "error", err)
			continue
		}
		commands = append(commands, &cmd)
	}

	if _, err := c.session.ApplicationCommandBulkOverwrite(c.session.State.User.ID, "", commands); err != nil {
		c.logger.Error("failed to register application commands", "error", err)
	}
}

// Shutdown implements shutdown.Stopper: it closes the gateway session.
func (c *Client) Shutdown(_ context.Context) error {
	return c.session.Close()
}
