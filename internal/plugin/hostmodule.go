package plugin

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero/api"

	"github.com/celarye/discord-bot/internal/sandbox"
)

// RegisterHostModule instantiates the process-wide "host" module every
// plugin imports its host calls from. One instance is shared by every
// plugin; each call recovers the calling plugin's Mediator from the
// context value stashed by withMediator when the host invoked the
// plugin's export in the first place — the same pattern used to scope
// host-call state to the calling guest in other wazero-based hosts.
func RegisterHostModule(ctx context.Context, sb *sandbox.Runtime) error {
	_, err := sb.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().WithFunc(hostLog).Export("log").
		NewFunctionBuilder().WithFunc(hostDiscordRequest).Export("discord_request").
		NewFunctionBuilder().WithFunc(hostDependencyFunction).Export("dependency").
		NewFunctionBuilder().WithFunc(hostShutdown).Export("shutdown").
		Instantiate(ctx)
	return err
}

func readGuestBytes(mod api.Module, ptr, size uint32) []byte {
	if size == 0 {
		return nil
	}
	data, ok := mod.Memory().Read(ptr, size)
	if !ok {
		return nil
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

func hostLog(ctx context.Context, mod api.Module, levelPtr, levelLen, msgPtr, msgLen uint32) {
	mediator := mediatorFrom(ctx)
	if mediator == nil {
		return
	}
	level := string(readGuestBytes(mod, levelPtr, levelLen))
	message := string(readGuestBytes(mod, msgPtr, msgLen))
	mediator.HostLog(level, message)
}

func hostDiscordRequest(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	mediator := mediatorFrom(ctx)
	if mediator == nil {
		return 0
	}

	var request DiscordRequest
	if err := json.Unmarshal(readGuestBytes(mod, reqPtr, reqLen), &request); err != nil {
		return writeEnvelope(ctx, mod, hostEnvelope{Error: err.Error()})
	}

	response, err := mediator.HostDiscordRequest(ctx, request)
	if err != nil {
		return writeEnvelope(ctx, mod, hostEnvelope{Error: err.Error()})
	}

	return writeEnvelope(ctx, mod, hostEnvelope{Response: response})
}

func hostDependencyFunction(ctx context.Context, mod api.Module, depPtr, depLen, fnPtr, fnLen, paramsPtr, paramsLen uint32) uint64 {
	mediator := mediatorFrom(ctx)
	if mediator == nil {
		return 0
	}

	dependency := string(readGuestBytes(mod, depPtr, depLen))
	function := string(readGuestBytes(mod, fnPtr, fnLen))
	params := readGuestBytes(mod, paramsPtr, paramsLen)

	result, err := mediator.HostDependencyFunction(ctx, dependency, function, params)
	if err != nil {
		return writeEnvelope(ctx, mod, hostEnvelope{Error: err.Error()})
	}

	ptr, writeErr := writeToGuest(ctx, mod, result)
	if writeErr != nil {
		return 0
	}
	return pack(ptr, uint32(len(result)))
}

func hostShutdown(ctx context.Context, mod api.Module, restart uint32) uint64 {
	mediator := mediatorFrom(ctx)
	if mediator == nil {
		return writeEnvelope(ctx, mod, hostEnvelope{Error: "no mediator bound to this call"})
	}
	if err := mediator.HostShutdown(ctx, restart != 0); err != nil {
		return writeEnvelope(ctx, mod, hostEnvelope{Error: err.Error()})
	}
	return writeEnvelope(ctx, mod, hostEnvelope{})
}

// hostEnvelope is the JSON result shape discord_request and shutdown
// return to the guest: Error is set on failure, Response carries a
// successful discord_request's response, and a successful shutdown
// sets neither. dependency uses this envelope only for failures; on
// success it returns the dependency's result bytes as they are.
type hostEnvelope struct {
	Response *DiscordResponse `json:"response,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func writeEnvelope(ctx context.Context, mod api.Module, envelope hostEnvelope) uint64 {
	data, err := json.Marshal(envelope)
	if err != nil {
		return 0
	}
	ptr, err := writeToGuest(ctx, mod, data)
	if err != nil {
		return 0
	}
	return pack(ptr, uint32(len(data)))
}
