package registry

import "encoding/json"

// defaultRegistry is used for plugin refs with no explicit
// "<registry>/" prefix.
const defaultRegistry = "celarye/discord-bot-plugins"

// Manifest is the decoded plugins.json file served by a registry.
type Manifest struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Maintainers []string                  `json:"maintainers"`
	Tooling     ManifestTooling           `json:"tooling"`
	Plugins     map[string]ManifestPlugin `json:"plugins"`
}

// ManifestTooling describes the build tooling used to produce the
// registry's plugin artifacts.
type ManifestTooling struct {
	BuildTime string `json:"build-time"`
	BuiltWith string `json:"built-with"`
}

// ManifestPlugin is one plugin entry in a registry manifest.
type ManifestPlugin struct {
	Versions          []ManifestPluginVersion `json:"versions"`
	Deprecated        bool                    `json:"deprecated"`
	DeprecationReason string                  `json:"deprecation-reason"`
	Description       string                  `json:"description"`
	ReleaseTime       string                  `json:"release-time"`
}

// ManifestPluginVersion is one published version of a plugin.
type ManifestPluginVersion struct {
	Version              string `json:"version"`
	CompatibleBotVersion string `json:"compatible-bot-version"`
	Deprecated           bool   `json:"deprecated"`
	DeprecationReason    string `json:"deprecation-reason"`
}

// PluginRef is a parsed "[<registry>/]<name>[:<version>]" reference.
type PluginRef struct {
	Registry string
	Name     string
	Version  string // "latest" if unspecified
}

// AvailablePlugin is a plugin resolved to a concrete on-disk version,
// ready to be loaded into the sandbox.
type AvailablePlugin struct {
	ID          string
	Name        string
	Version     string
	Environment map[string]string
	Settings    json.RawMessage
}
