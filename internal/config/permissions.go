package config

import "fmt"

// Permissions is a bitset over the capability set a plugin may be
// granted. Unknown permission strings in config are a configuration
// error (rejected at load time).
type Permissions uint32

const (
	PermDependencyFunctions Permissions = 1 << iota
	PermDiscordEventMessageCreate
	PermDiscordEventInteractionCreate
	PermDiscordEventThreadCreate
	PermDiscordEventThreadDelete
	PermDiscordEventThreadListSync
	PermDiscordEventThreadMemberUpdate
	PermDiscordEventThreadMembersUpdate
	PermDiscordEventThreadUpdate
	PermShutdown
)

var permissionNames = map[string]Permissions{
	"DependencyFunctions":              PermDependencyFunctions,
	"DiscordEvent.MessageCreate":       PermDiscordEventMessageCreate,
	"DiscordEvent.InteractionCreate":   PermDiscordEventInteractionCreate,
	"DiscordEvent.ThreadCreate":        PermDiscordEventThreadCreate,
	"DiscordEvent.ThreadDelete":        PermDiscordEventThreadDelete,
	"DiscordEvent.ThreadListSync":      PermDiscordEventThreadListSync,
	"DiscordEvent.ThreadMemberUpdate":  PermDiscordEventThreadMemberUpdate,
	"DiscordEvent.ThreadMembersUpdate": PermDiscordEventThreadMembersUpdate,
	"DiscordEvent.ThreadUpdate":        PermDiscordEventThreadUpdate,
	"Shutdown":                         PermShutdown,
}

// ParsePermissions converts the enumerated capability names from
// config into a Permissions bitset. An unknown name is a configuration
// error.
func ParsePermissions(names []string) (Permissions, error) {
	var perms Permissions
	for _, name := range names {
		bit, ok := permissionNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown permission: %s", name)
		}
		perms |= bit
	}
	return perms, nil
}

// Has reports whether p grants the given capability.
func (p Permissions) Has(capability Permissions) bool {
	return p&capability != 0
}
