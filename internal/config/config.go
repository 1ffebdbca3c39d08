// Package config provides unified configuration management for the
// plugin host: the bot's plugin map, logging parameters, and the
// registry/cache defaults consumed by the registry resolver.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure, unmarshalled from the
// host's config.yaml.
type Config struct {
	filePath string `yaml:"-"`

	// ID is the bot instance identifier.
	ID string `yaml:"id"`

	// HTTPClientTimeoutSeconds bounds registry HTTP fetches.
	HTTPClientTimeoutSeconds int `yaml:"http_client_timeout_seconds"`

	// PluginDirectory is where resolved plugin artifacts are materialized.
	PluginDirectory string `yaml:"plugin_directory"`

	// Cache is the default cache toggle, overridable per plugin.
	Cache bool `yaml:"cache"`

	// Plugins maps the configured plugin id to its options.
	Plugins map[string]PluginOptions `yaml:"plugins"`

	// PluginOrder preserves the order plugins appeared in the YAML
	// document, since map iteration in Go is not insertion-ordered and
	// the registration store's subscriber ordering depends on it.
	PluginOrder []string `yaml:"-"`

	// Logging holds the CLI/log-sink configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// PluginOptions holds the per-plugin configuration entry.
type PluginOptions struct {
	Plugin      string            `yaml:"plugin"`
	Cache       *bool             `yaml:"cache,omitempty"`
	Permissions []string          `yaml:"permissions"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Settings    json.RawMessage   `yaml:"settings,omitempty"`
}

// LoggingConfig mirrors the CLI surface's log parameters.
type LoggingConfig struct {
	StdoutLevel      string `yaml:"stdout_level"`
	StdoutANSI       bool   `yaml:"stdout_ansi"`
	FileLevel        string `yaml:"file_level"`
	FileANSI         bool   `yaml:"file_ansi"`
	Directory        string `yaml:"directory"`
	Rotation         string `yaml:"rotation"` // MINUTELY|HOURLY|DAILY|NEVER
	MaxRetainedFiles int    `yaml:"max_retained_files"`
	FilenamePrefix   string `yaml:"filename_prefix"`
	FilenameSuffix   string `yaml:"filename_suffix"`
}

// Load reads and parses the config file at filePath. A missing file
// is a configuration error: unlike the bot's ambient defaults, there
// is no meaningful plugin host without a plugin map.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := &Config{filePath: filePath}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.PluginOrder = pluginOrder([]byte(expanded))
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches $VAR_NAME and ${VAR_NAME} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces $VAR and ${VAR} references with environment
// variable values, leaving unset references untouched.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// pluginSectionPattern and pluginKeyPattern extract top-level keys of
// the "plugins:" map in document order, since yaml.v3 decodes
// map[string]T in Go's (randomized) map order.
var pluginSectionPattern = regexp.MustCompile(`(?m)^plugins:\s*\n((?:^  .*\n?)*)`)
var pluginKeyPattern = regexp.MustCompile(`(?m)^  (\S+):`)

func pluginOrder(doc []byte) []string {
	section := pluginSectionPattern.FindSubmatch(doc)
	if section == nil {
		return nil
	}
	matches := pluginKeyPattern.FindAllSubmatch(section[1], -1)
	order := make([]string, 0, len(matches))
	for _, m := range matches {
		order = append(order, string(m[1]))
	}
	return order
}

// setDefaults fills in unset fields with sensible defaults.
func (c *Config) setDefaults() {
	if c.HTTPClientTimeoutSeconds == 0 {
		c.HTTPClientTimeoutSeconds = 30
	}
	if c.PluginDirectory == "" {
		c.PluginDirectory = "./plugins"
	}
	if c.Logging.StdoutLevel == "" {
		c.Logging.StdoutLevel = "info"
	}
	if c.Logging.FileLevel == "" {
		c.Logging.FileLevel = "info"
	}
	if c.Logging.Rotation == "" {
		c.Logging.Rotation = "DAILY"
	}
	if c.Logging.MaxRetainedFiles == 0 {
		c.Logging.MaxRetainedFiles = 7
	}
	if c.Logging.FilenamePrefix == "" {
		c.Logging.FilenamePrefix = "discord-bot"
	}
	if c.Logging.FilenameSuffix == "" {
		c.Logging.FilenameSuffix = ".log"
	}
}

// Validate rejects unknown permission names and malformed rotation
// values. Configuration errors are fatal: the host refuses to start.
func (c *Config) Validate() error {
	for id, opts := range c.Plugins {
		if _, err := ParsePermissions(opts.Permissions); err != nil {
			return fmt.Errorf("plugin %q: %w", id, err)
		}
	}

	switch c.Logging.Rotation {
	case "MINUTELY", "HOURLY", "DAILY", "NEVER":
	default:
		return fmt.Errorf("invalid logging rotation: %s", c.Logging.Rotation)
	}

	return nil
}

// CacheFor returns whether caching is enabled for the named plugin,
// falling back to the host-wide default.
func (c *Config) CacheFor(pluginID string) bool {
	if opts, ok := c.Plugins[pluginID]; ok && opts.Cache != nil {
		return *opts.Cache
	}
	return c.Cache
}

// OrderedPluginIDs returns the plugin ids in config-document order,
// falling back to map iteration if the order could not be recovered
// (e.g. a config built programmatically rather than parsed from YAML).
func (c *Config) OrderedPluginIDs() []string {
	if len(c.PluginOrder) == len(c.Plugins) {
		return c.PluginOrder
	}
	ids := make([]string, 0, len(c.Plugins))
	for id := range c.Plugins {
		ids = append(ids, id)
	}
	return ids
}
