package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/celarye/discord-bot/internal/channels"
	"github.com/celarye/discord-bot/internal/config"
	"github.com/celarye/discord-bot/internal/registry"
	"github.com/celarye/discord-bot/internal/sandbox"
	"github.com/celarye/discord-bot/internal/shutdown"
)

// hostModuleName is the import module name every compiled plugin
// declares its host functions under.
const hostModuleName = "host"

// runtimePlugin is one loaded, initialized plugin instance.
type runtimePlugin struct {
	id       string
	module   api.Module
	mediator *Mediator
	ref      *runtimeRef

	// store serializes calls into this plugin's WASM instance, since a
	// single wazero module instance is not safe for concurrent calls.
	// Serializing (rather than instantiating fresh per call, as the
	// no-state reglet plugins do) preserves the plugin's own
	// in-memory state across calls, which this host's plugin contract
	// allows by design.
	store sync.Mutex

	// permissions gates which host calls the runtime will actually
	// perform on this plugin's behalf, e.g. Shutdown.
	permissions config.Permissions
}

// Runtime owns every loaded plugin instance, the registration store
// built from their initialization() responses, and the single-consumer
// event loop that drains channels.RuntimeMessage.
type Runtime struct {
	sandbox       *sandbox.Runtime
	logger        *slog.Logger
	registrations *RegistrationStore
	chans         *channels.Bundle
	coordinator   *shutdown.Coordinator

	mu      sync.RWMutex
	plugins map[string]*runtimePlugin

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Runtime. SetCoordinator must be called once the
// shutdown coordinator exists, before any plugin's shutdown host call
// can be served.
func New(sb *sandbox.Runtime, logger *slog.Logger, chans *channels.Bundle) *Runtime {
	return &Runtime{
		sandbox:       sb,
		logger:        logger,
		registrations: NewRegistrationStore(),
		chans:         chans,
		plugins:       make(map[string]*runtimePlugin),
		done:          make(chan struct{}),
	}
}

// SetCoordinator wires the shutdown coordinator the Runtime forwards
// plugin-initiated shutdown requests to.
func (r *Runtime) SetCoordinator(c *shutdown.Coordinator) {
	r.coordinator = c
}

// Registrations returns the registration store built during
// initialization, for the Discord client and job scheduler to read
// subscriber lists from.
func (r *Runtime) Registrations() *RegistrationStore {
	return r.registrations
}

// InitializationOutcome carries the fully resolved registrations
// produced by initializing every plugin, ready to hand to the Discord
// client (application commands) and job scheduler (scheduled jobs).
type InitializationOutcome struct {
	ApplicationCommands []ApplicationCommandRegistration
	ScheduledJobs       []ScheduledJobRegistration
}

// InitializePlugins loads, instantiates, and calls initialization() on
// every available plugin, in config order. A plugin that fails to
// compile, instantiate, or initialize is logged and skipped; it never
// aborts the rest of the batch.
func (r *Runtime) InitializePlugins(ctx context.Context, pluginDir string, available []registry.AvailablePlugin, permissionsByID map[string]config.Permissions) (InitializationOutcome, error) {
	var outcome InitializationOutcome

	for _, plugin := range available {
		if err := r.initializeOne(ctx, pluginDir, plugin, permissionsByID[plugin.ID], &outcome); err != nil {
			r.logger.Error("failed to initialize plugin", "plugin_id", plugin.ID, "error", err)
		}
	}

	return outcome, nil
}

func (r *Runtime) initializeOne(ctx context.Context, pluginDir string, available registry.AvailablePlugin, permissions config.Permissions, outcome *InitializationOutcome) error {
	versionDir := filepath.Join(pluginDir, available.Name, available.Version)
	wasmPath := filepath.Join(versionDir, "plugin.wasm")

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("read plugin.wasm: %w", err)
	}

	compiled, err := r.sandbox.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("compile module: %w", err)
	}

	workspaceDir := filepath.Join(versionDir, "workspace")
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("create workspace directory: %w", err)
	}

	logSink := sandbox.LogWriter{Logger: r.logger, PluginID: available.ID}
	moduleConfig := sandbox.NewModuleConfig(sandbox.ModuleParams{
		Name:         available.ID,
		WorkspaceDir: workspaceDir,
		Environment:  available.Environment,
		LogSink:      logSink,
	})

	instance, err := r.sandbox.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		return fmt.Errorf("instantiate module: %w", err)
	}

	ref := newRuntimeRef(r)
	mediator := newMediator(available.ID, ref, r.logger, permissions)

	rp := &runtimePlugin{id: available.ID, module: instance, mediator: mediator, ref: ref, permissions: permissions}

	initCtx := withMediator(ctx, mediator)

	initResult, err := r.callInitialize(initCtx, rp, available.Settings, permissions)
	if err != nil {
		_ = instance.Close(ctx)
		return fmt.Errorf("call initialize: %w", err)
	}

	r.mu.Lock()
	r.plugins[available.ID] = rp
	r.mu.Unlock()

	r.registrations.Subscribe(available.ID, initResult.DiscordEvents)
	r.registrations.RegisterDependencyFunctions(available.ID, initResult.DependencyFunctions)

	for _, appCmd := range initResult.DiscordEvents.InteractionCreate.ApplicationCommands {
		registration, err := r.registrations.RegisterApplicationCommand(available.ID, appCmd.InternalID, appCmd)
		if err != nil {
			r.logger.Error("failed to register application command", "plugin_id", available.ID, "error", err)
			continue
		}
		outcome.ApplicationCommands = append(outcome.ApplicationCommands, registration)
	}

	for _, job := range initResult.ScheduledJobs {
		outcome.ScheduledJobs = append(outcome.ScheduledJobs, ScheduledJobRegistration{
			PluginID:   available.ID,
			InternalID: job.InternalID,
			Crons:      job.Crons,
		})
	}

	return nil
}

func (r *Runtime) callInitialize(ctx context.Context, rp *runtimePlugin, settings json.RawMessage, permissions config.Permissions) (InitializationResult, error) {
	fn := rp.module.ExportedFunction("initialization")
	if fn == nil {
		return InitializationResult{}, fmt.Errorf("plugin does not export initialization")
	}

	argBytes, err := marshalInitRequest(settings, uint32(permissions))
	if err != nil {
		return InitializationResult{}, fmt.Errorf("marshal initialize request: %w", err)
	}

	argPtr, err := writeToGuest(ctx, rp.module, argBytes)
	if err != nil {
		return InitializationResult{}, fmt.Errorf("write initialize request: %w", err)
	}

	rp.store.Lock()
	results, err := fn.Call(ctx, uint64(argPtr), uint64(len(argBytes)))
	rp.store.Unlock()
	if err != nil {
		return InitializationResult{}, fmt.Errorf("call initialize: %w", err)
	}
	if len(results) == 0 {
		return InitializationResult{}, fmt.Errorf("initialize returned no results")
	}

	ptr, size := unpack(results[0])
	data, err := readAndFree(ctx, rp.module, ptr, size)
	if err != nil {
		return InitializationResult{}, fmt.Errorf("read initialize result: %w", err)
	}

	var result InitializationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return InitializationResult{}, fmt.Errorf("decode initialize result: %w", err)
	}

	return result, nil
}

// Start launches the single-consumer event loop that drains
// channels.RuntimeMessage until ctx is canceled.
func (r *Runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		defer close(r.done)
		for {
			select {
			case msg, ok := <-r.chans.Runtime:
				if !ok {
					return
				}
				r.handle(ctx, msg)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Runtime) handle(ctx context.Context, msg channels.RuntimeMessage) {
	switch {
	case msg.DiscordEvent != nil:
		r.callDiscordEvent(ctx, msg.DiscordEvent.PluginID, msg.DiscordEvent.Event)
	case msg.ScheduledJob != nil:
		r.callScheduledJob(ctx, msg.ScheduledJob.PluginID, msg.ScheduledJob.InternalID)
	}
}

func (r *Runtime) lookup(pluginID string) (*runtimePlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.plugins[pluginID]
	return rp, ok
}

// callDiscordEvent delivers event to pluginID's discord_event export.
// A trap (WASM execution error) removes the plugin from the runtime
// rather than propagating, so one misbehaving plugin cannot bring
// down the event loop.
func (r *Runtime) callDiscordEvent(ctx context.Context, pluginID string, event DiscordEvent) {
	rp, ok := r.lookup(pluginID)
	if !ok {
		r.logger.Warn("discord event routed to unknown plugin", "plugin_id", pluginID)
		return
	}

	fn := rp.module.ExportedFunction("discord_event")
	if fn == nil {
		r.logger.Error("plugin does not export discord_event", "plugin_id", pluginID)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to marshal discord event", "plugin_id", pluginID, "error", err)
		return
	}

	callCtx := withMediator(ctx, rp.mediator)
	argPtr, err := writeToGuest(callCtx, rp.module, payload)
	if err != nil {
		r.logger.Error("failed to write discord event", "plugin_id", pluginID, "error", err)
		return
	}

	rp.store.Lock()
	_, err = fn.Call(callCtx, uint64(argPtr), uint64(len(payload)))
	rp.store.Unlock()
	if err != nil {
		r.logger.Error("plugin trapped handling discord event, removing it", "plugin_id", pluginID, "error", err)
		r.remove(pluginID)
	}
}

func (r *Runtime) callScheduledJob(ctx context.Context, pluginID, internalID string) {
	rp, ok := r.lookup(pluginID)
	if !ok {
		r.logger.Warn("scheduled job routed to unknown plugin", "plugin_id", pluginID)
		return
	}

	fn := rp.module.ExportedFunction("scheduled_job")
	if fn == nil {
		r.logger.Error("plugin does not export scheduled_job", "plugin_id", pluginID)
		return
	}

	callCtx := withMediator(ctx, rp.mediator)
	argPtr, err := writeToGuest(callCtx, rp.module, []byte(internalID))
	if err != nil {
		r.logger.Error("failed to write scheduled job id", "plugin_id", pluginID, "error", err)
		return
	}

	rp.store.Lock()
	_, err = fn.Call(callCtx, uint64(argPtr), uint64(len(internalID)))
	rp.store.Unlock()
	if err != nil {
		r.logger.Error("plugin trapped handling scheduled job, removing it", "plugin_id", pluginID, "error", err)
		r.remove(pluginID)
	}
}

// callDependency implements a plugin-to-plugin dependency function
// call, guarding against cycles: callerID must not already be on the
// dependency chain carried in ctx, and the target must have declared
// function as a dependency function.
func (r *Runtime) callDependency(ctx context.Context, callerID, dependency, function string, params []byte) ([]byte, error) {
	chain := dependencyChainFrom(ctx)
	if chain == nil {
		chain = make(map[string]struct{})
	}
	if _, onChain := chain[callerID]; onChain {
		return nil, fmt.Errorf("dependency call cycle detected at %q", callerID)
	}
	if _, onChain := chain[dependency]; onChain {
		return nil, fmt.Errorf("dependency call cycle detected: %q already on call chain", dependency)
	}

	if !r.registrations.HasDependencyFunction(dependency, function) {
		return nil, fmt.Errorf("plugin %q does not expose dependency function %q", dependency, function)
	}

	rp, ok := r.lookup(dependency)
	if !ok {
		return nil, fmt.Errorf("dependency plugin %q not loaded", dependency)
	}

	fn := rp.module.ExportedFunction("dependency")
	if fn == nil {
		return nil, fmt.Errorf("plugin %q does not export dependency", dependency)
	}

	nextChain := make(map[string]struct{}, len(chain)+1)
	for id := range chain {
		nextChain[id] = struct{}{}
	}
	nextChain[callerID] = struct{}{}

	callCtx := withDependencyChain(withMediator(ctx, rp.mediator), nextChain)

	request := struct {
		Function string `json:"function"`
		Params   []byte `json:"params"`
	}{Function: function, Params: params}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal dependency request: %w", err)
	}

	argPtr, err := writeToGuest(callCtx, rp.module, payload)
	if err != nil {
		return nil, fmt.Errorf("write dependency request: %w", err)
	}

	rp.store.Lock()
	results, err := fn.Call(callCtx, uint64(argPtr), uint64(len(payload)))
	rp.store.Unlock()
	if err != nil {
		r.logger.Error("plugin trapped handling dependency call, removing it", "plugin_id", dependency, "error", err)
		r.remove(dependency)
		return nil, fmt.Errorf("dependency plugin trapped: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("dependency returned no results")
	}

	ptr, size := unpack(results[0])
	return readAndFree(callCtx, rp.module, ptr, size)
}

// mediateDiscordRequest forwards a plugin's Discord REST request to
// the Discord client collaborator and waits for its reply.
func (r *Runtime) mediateDiscordRequest(ctx context.Context, request DiscordRequest) (*DiscordResponse, error) {
	reply := make(chan channels.DiscordRequestResult, 1)

	select {
	case r.chans.DiscordClient <- channels.DiscordClientMessage{
		Request: &channels.DiscordRequestMessage{Request: request, Reply: reply},
	}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-reply:
		if result.Err != nil {
			return nil, result.Err
		}
		return &result.Response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestShutdown forwards a plugin-initiated shutdown request to the
// shutdown coordinator.
func (r *Runtime) RequestShutdown(ctx context.Context, reason shutdown.Reason) {
	if r.coordinator == nil {
		r.logger.Error("shutdown requested before coordinator was wired")
		return
	}
	go r.coordinator.Request(ctx, reason)
}

// remove drops a trapped plugin from the runtime; it no longer
// receives events or scheduled job calls.
func (r *Runtime) remove(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, pluginID)
}

// Shutdown implements shutdown.Stopper: for every loaded plugin it
// calls the shutdown() export if the plugin holds the Shutdown
// capability, then closes its module instance and clears its
// mediator's back-reference to the Runtime, stops the event loop, and
// closes the sandbox's process-wide wazero runtime.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	plugins := make([]*runtimePlugin, 0, len(r.plugins))
	for _, rp := range r.plugins {
		plugins = append(plugins, rp)
	}
	r.mu.Unlock()

	for _, rp := range plugins {
		// The reference host only invokes call_shutdown(plugin_id) for
		// plugins that declared the Shutdown capability.
		if rp.permissions.Has(config.PermShutdown) {
			r.callShutdownExport(ctx, rp)
		}
		rp.ref.clear()
		_ = rp.module.Close(ctx)
	}

	if r.cancel != nil {
		r.cancel()
		<-r.done
	}

	return r.sandbox.Close(ctx)
}

func (r *Runtime) callShutdownExport(ctx context.Context, rp *runtimePlugin) {
	fn := rp.module.ExportedFunction("shutdown")
	if fn == nil {
		return
	}
	callCtx := withMediator(ctx, rp.mediator)
	rp.store.Lock()
	_, err := fn.Call(callCtx)
	rp.store.Unlock()
	if err != nil {
		r.logger.Error("plugin returned an error from shutdown", "plugin_id", rp.id, "error", err)
	}
}

// mediatorContextKey is the context key host functions use to recover
// the calling plugin's Mediator.
type mediatorContextKey struct{}

func withMediator(ctx context.Context, m *Mediator) context.Context {
	return context.WithValue(ctx, mediatorContextKey{}, m)
}

func mediatorFrom(ctx context.Context) *Mediator {
	m, _ := ctx.Value(mediatorContextKey{}).(*Mediator)
	return m
}
