package plugin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// RegistrationStore tracks which plugin is subscribed to which
// Discord event, which plugin owns which application command /
// message-component custom id / modal custom id / scheduled job, and
// which plugin exposes which dependency functions.
//
// Reads and writes are synchronized with a single mutex: registration
// only happens during plugin initialization, which is infrequent
// relative to event dispatch.
type RegistrationStore struct {
	mu sync.RWMutex

	messageCreate       []string
	threadCreate        []string
	threadDelete        []string
	threadListSync      []string
	threadMemberUpdate  []string
	threadMembersUpdate []string
	threadUpdate        []string

	// applicationCommands maps the (possibly renamed) command name to
	// the owning plugin id and the plugin's internal id for it.
	applicationCommands map[string]commandOwner
	messageComponents   map[string]string // custom id -> plugin id
	modals              map[string]string // custom id -> plugin id

	dependencyFunctions map[string]map[string]struct{} // plugin id -> function names
}

type commandOwner struct {
	PluginID   string
	InternalID string
}

// NewRegistrationStore builds an empty store.
func NewRegistrationStore() *RegistrationStore {
	return &RegistrationStore{
		applicationCommands: make(map[string]commandOwner),
		messageComponents:   make(map[string]string),
		modals:              make(map[string]string),
		dependencyFunctions: make(map[string]map[string]struct{}),
	}
}

// Subscribe registers pluginID for the Discord events named in reg,
// in registration (config) order.
func (s *RegistrationStore) Subscribe(pluginID string, reg DiscordEventRegistrations) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reg.MessageCreate {
		s.messageCreate = append(s.messageCreate, pluginID)
	}
	if reg.ThreadCreate {
		s.threadCreate = append(s.threadCreate, pluginID)
	}
	if reg.ThreadDelete {
		s.threadDelete = append(s.threadDelete, pluginID)
	}
	if reg.ThreadListSync {
		s.threadListSync = append(s.threadListSync, pluginID)
	}
	if reg.ThreadMemberUpdate {
		s.threadMemberUpdate = append(s.threadMemberUpdate, pluginID)
	}
	if reg.ThreadMembersUpdate {
		s.threadMembersUpdate = append(s.threadMembersUpdate, pluginID)
	}
	if reg.ThreadUpdate {
		s.threadUpdate = append(s.threadUpdate, pluginID)
	}

	for _, customID := range reg.InteractionCreate.MessageComponents {
		if existing, ok := s.messageComponents[customID]; ok {
			slog.Default().Warn("message component custom id collision, last writer wins",
				"custom_id", customID, "previous_plugin", existing, "new_plugin", pluginID)
		}
		s.messageComponents[customID] = pluginID
	}

	for _, customID := range reg.InteractionCreate.Modals {
		if existing, ok := s.modals[customID]; ok {
			slog.Default().Warn("modal custom id collision, last writer wins",
				"custom_id", customID, "previous_plugin", existing, "new_plugin", pluginID)
		}
		s.modals[customID] = pluginID
	}
}

// RegisterDependencyFunctions records the dependency functions pluginID
// exposes for other plugins to call.
func (s *RegistrationStore) RegisterDependencyFunctions(pluginID string, functions []string) {
	if len(functions) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.dependencyFunctions[pluginID]
	if !ok {
		set = make(map[string]struct{}, len(functions))
		s.dependencyFunctions[pluginID] = set
	}
	for _, fn := range functions {
		set[fn] = struct{}{}
	}
}

// HasDependencyFunction reports whether pluginID has registered
// function as a dependency function.
func (s *RegistrationStore) HasDependencyFunction(pluginID, function string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.dependencyFunctions[pluginID]
	if !ok {
		return false
	}
	_, ok = set[function]
	return ok
}

// RegisterApplicationCommand assigns a collision-free name for a
// requested application command: on a name clash, "~1", "~2", ...
// are appended in order until a free name is found, exactly as the
// reference implementation's registration loop does. Returns the
// final command registration with its (possibly renamed) name
// patched into Data's "name" field.
func (s *RegistrationStore) RegisterApplicationCommand(pluginID, internalID string, request ApplicationCommandRequest) (ApplicationCommandRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := request.Name
	occurrence := 0
	for {
		candidate := name
		if occurrence != 0 {
			candidate = fmt.Sprintf("%s~%d", name, occurrence)
		}
		if _, taken := s.applicationCommands[candidate]; !taken {
			s.applicationCommands[candidate] = commandOwner{PluginID: pluginID, InternalID: internalID}
			data, err := patchCommandName(request.Data, candidate)
			if err != nil {
				return ApplicationCommandRegistration{}, fmt.Errorf("patch command name: %w", err)
			}
			return ApplicationCommandRegistration{PluginID: pluginID, ID: candidate, Data: data}, nil
		}
		occurrence++
	}
}

// CommandOwner returns the plugin id and internal id that owns the
// given (possibly renamed) command name.
func (s *RegistrationStore) CommandOwner(name string) (pluginID, internalID string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.applicationCommands[name]
	return owner.PluginID, owner.InternalID, ok
}

// MessageComponentOwner returns the plugin id that owns customID.
func (s *RegistrationStore) MessageComponentOwner(customID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pluginID, ok := s.messageComponents[customID]
	return pluginID, ok
}

// ModalOwner returns the plugin id that owns customID.
func (s *RegistrationStore) ModalOwner(customID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pluginID, ok := s.modals[customID]
	return pluginID, ok
}

// Subscribers returns the plugin ids subscribed to the named event,
// in registration order.
func (s *RegistrationStore) Subscribers(kind DiscordEventKind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch kind {
	case EventMessageCreate:
		return append([]string(nil), s.messageCreate...)
	case EventThreadCreate:
		return append([]string(nil), s.threadCreate...)
	case EventThreadDelete:
		return append([]string(nil), s.threadDelete...)
	case EventThreadListSync:
		return append([]string(nil), s.threadListSync...)
	case EventThreadMemberUpdate:
		return append([]string(nil), s.threadMemberUpdate...)
	case EventThreadMembersUpdate:
		return append([]string(nil), s.threadMembersUpdate...)
	case EventThreadUpdate:
		return append([]string(nil), s.threadUpdate...)
	default:
		return nil
	}
}

func patchCommandName(data json.RawMessage, name string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	nameJSON, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	fields["name"] = nameJSON
	return json.Marshal(fields)
}
