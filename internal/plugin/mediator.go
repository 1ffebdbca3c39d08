package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/celarye/discord-bot/internal/config"
	"github.com/celarye/discord-bot/internal/shutdown"
)

// runtimeRef is a non-owning, revocable reference from a plugin's
// host-call mediator back to the owning Runtime. It stands in for the
// reference-counted host's Weak<Runtime> back-pointer: after the
// Runtime finishes tearing down it clears every mediator's ref, so a
// host call racing shutdown observes "gone" instead of reaching into
// a half-torn-down Runtime.
type runtimeRef struct {
	ptr atomic.Pointer[Runtime]
}

func newRuntimeRef(r *Runtime) *runtimeRef {
	ref := &runtimeRef{}
	ref.ptr.Store(r)
	return ref
}

func (r *runtimeRef) upgrade() (*Runtime, bool) {
	p := r.ptr.Load()
	if p == nil {
		return nil, false
	}
	return p, true
}

func (r *runtimeRef) clear() {
	r.ptr.Store(nil)
}

// Mediator implements the host functions a plugin's WASM module
// imports: log, discord_request, dependency, and shutdown.
// One Mediator is bound per plugin instance.
type Mediator struct {
	pluginID    string
	runtime     *runtimeRef
	logger      *slog.Logger
	permissions config.Permissions
}

func newMediator(pluginID string, runtime *runtimeRef, logger *slog.Logger, permissions config.Permissions) *Mediator {
	return &Mediator{pluginID: pluginID, runtime: runtime, logger: logger, permissions: permissions}
}

// HostLog implements the plugin's log host call: level and a message,
// logged through the host's own structured logger.
func (m *Mediator) HostLog(level, message string) {
	attrs := []any{"plugin_id", m.pluginID}
	switch level {
	case "trace", "debug":
		m.logger.Debug(message, attrs...)
	case "warn":
		m.logger.Warn(message, attrs...)
	case "error":
		m.logger.Error(message, attrs...)
	default:
		m.logger.Info(message, attrs...)
	}
}

// HostDiscordRequest implements the plugin's discord_request host
// call: it is mediated through the Discord client collaborator so the
// plugin never reaches the network directly.
func (m *Mediator) HostDiscordRequest(ctx context.Context, request DiscordRequest) (*DiscordResponse, error) {
	runtime, ok := m.runtime.upgrade()
	if !ok {
		return nil, fmt.Errorf("runtime is shutting down")
	}
	return runtime.mediateDiscordRequest(ctx, request)
}

// HostDependencyFunction implements the plugin's dependency host
// call: the dependency plugin must have registered function as one of
// its dependency functions, and the call must not close a cycle back
// to a plugin already on the call chain in ctx.
func (m *Mediator) HostDependencyFunction(ctx context.Context, dependency, function string, params []byte) ([]byte, error) {
	runtime, ok := m.runtime.upgrade()
	if !ok {
		return nil, fmt.Errorf("runtime is shutting down")
	}
	return runtime.callDependency(ctx, m.pluginID, dependency, function, params)
}

// HostShutdown implements the plugin's shutdown host call. Permitted
// only if the calling plugin's permissions include Shutdown; otherwise
// an error is returned to the plugin and the host continues.
func (m *Mediator) HostShutdown(ctx context.Context, restart bool) error {
	if !m.permissions.Has(config.PermShutdown) {
		return fmt.Errorf("plugin %q does not have the Shutdown capability", m.pluginID)
	}

	runtime, ok := m.runtime.upgrade()
	if !ok {
		return nil
	}
	reason := shutdown.ReasonNormal
	if restart {
		reason = shutdown.ReasonRestart
	}
	runtime.RequestShutdown(ctx, reason)
	return nil
}

// dependencyChainKey is the context key used to carry the set of
// plugin ids already on the current dependency-call chain, so
// callDependency can detect cycles.
type dependencyChainKey struct{}

func withDependencyChain(ctx context.Context, chain map[string]struct{}) context.Context {
	return context.WithValue(ctx, dependencyChainKey{}, chain)
}

func dependencyChainFrom(ctx context.Context) map[string]struct{} {
	chain, _ := ctx.Value(dependencyChainKey{}).(map[string]struct{})
	return chain
}

// marshalInitRequest is a small helper kept here (rather than in
// types.go) since it is only ever used to build the initialization()
// argument buffer for a plugin instance.
func marshalInitRequest(settings json.RawMessage, permissions uint32) ([]byte, error) {
	payload := struct {
		Settings    json.RawMessage `json:"settings"`
		Permissions uint32          `json:"permissions"`
	}{Settings: settings, Permissions: permissions}
	return json.Marshal(payload)
}
