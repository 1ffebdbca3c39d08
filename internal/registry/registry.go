// Package registry resolves configured plugin references against
// GitHub-hosted registries, downloading and caching plugin artifacts
// on disk.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/celarye/discord-bot/internal/config"
	"github.com/celarye/discord-bot/internal/httpclient"
	"github.com/celarye/discord-bot/internal/version"
)

// maxConcurrentResolutions bounds the number of plugins resolved at
// once, so a config with many plugins doesn't open unbounded
// concurrent registry requests.
const maxConcurrentResolutions = 8

// Fetcher is the subset of httpclient.Client the resolver needs, so
// tests can substitute a stub.
type Fetcher interface {
	GetFileFromRegistry(ctx context.Context, registry, path string) ([]byte, error)
}

var _ Fetcher = (*httpclient.Client)(nil)

// manifestResult caches either a decoded manifest or the fact that the
// registry could not be reached/parsed, so repeated failures for the
// same registry don't retry per plugin.
type manifestResult struct {
	manifest *Manifest
	err      error
}

// Resolver resolves plugin refs from a configuration into
// AvailablePlugin values, downloading artifacts as needed.
type Resolver struct {
	fetcher   Fetcher
	logger    *slog.Logger
	manifests sync.Map // registry string -> *manifestResult
}

// New builds a Resolver backed by fetcher.
func New(fetcher Fetcher, logger *slog.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, logger: logger}
}

// Resolve resolves every plugin named in cfg's plugin map to a
// concrete on-disk version. Resolution runs with bounded concurrency
// across plugins, but the returned slice follows the order of
// config.OrderedPluginIDs; plugins that fail to resolve are omitted.
func (r *Resolver) Resolve(ctx context.Context, cfg *config.Config, pluginDir string) []AvailablePlugin {
	ids := cfg.OrderedPluginIDs()

	results := make([]*AvailablePlugin, len(ids))
	sem := make(chan struct{}, maxConcurrentResolutions)
	var wg sync.WaitGroup

	for i, id := range ids {
		opts, ok := cfg.Plugins[id]
		if !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id string, opts config.PluginOptions) {
			defer wg.Done()
			defer func() { <-sem }()

			available, err := r.resolveOne(ctx, id, opts, pluginDir, cfg.CacheFor(id))
			if err != nil {
				r.logger.Error("failed to resolve plugin", "plugin_id", id, "error", err)
				return
			}
			results[i] = available
		}(i, id, opts)
	}

	wg.Wait()

	available := make([]AvailablePlugin, 0, len(results))
	for _, a := range results {
		if a != nil {
			available = append(available, *a)
		}
	}
	return available
}

func (r *Resolver) resolveOne(ctx context.Context, pluginID string, opts config.PluginOptions, pluginDir string, cache bool) (*AvailablePlugin, error) {
	ref, err := ParseRef(opts.Plugin)
	if err != nil {
		return nil, fmt.Errorf("parse plugin ref %q: %w", opts.Plugin, err)
	}

	manifest, err := r.manifestFor(ctx, ref.Registry)
	if err != nil {
		return nil, fmt.Errorf("invalid registry %q: %w", ref.Registry, err)
	}

	entry, ok := manifest.Plugins[ref.Name]
	if !ok {
		return nil, fmt.Errorf("plugin %q not found in registry %q", ref.Name, ref.Registry)
	}

	chosen, err := selectVersion(ref, entry.Versions, r.logger)
	if err != nil {
		return nil, err
	}

	versionDir := filepath.Join(pluginDir, ref.Name, chosen)
	wasmPath := filepath.Join(versionDir, "plugin.wasm")

	if cache {
		if _, statErr := os.Stat(wasmPath); statErr == nil {
			return &AvailablePlugin{
				ID: pluginID, Name: ref.Name, Version: chosen,
				Environment: opts.Environment, Settings: opts.Settings,
			}, nil
		}
	}

	if err := r.download(ctx, ref.Registry, ref.Name, chosen, versionDir); err != nil {
		return nil, err
	}

	return &AvailablePlugin{
		ID: pluginID, Name: ref.Name, Version: chosen,
		Environment: opts.Environment, Settings: opts.Settings,
	}, nil
}

func (r *Resolver) download(ctx context.Context, registry, name, chosenVersion, versionDir string) error {
	metadata, err := r.fetcher.GetFileFromRegistry(ctx, registry, filepath.Join(name, chosenVersion, "metadata.json"))
	if err != nil {
		return fmt.Errorf("fetch metadata.json: %w", err)
	}

	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return fmt.Errorf("create plugin directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(versionDir, "metadata.json"), metadata, 0o644); err != nil {
		return fmt.Errorf("write metadata.json: %w", err)
	}

	wasm, err := r.fetcher.GetFileFromRegistry(ctx, registry, filepath.Join(name, chosenVersion, "plugin.wasm"))
	if err != nil {
		return fmt.Errorf("fetch plugin.wasm: %w", err)
	}

	if err := os.WriteFile(filepath.Join(versionDir, "plugin.wasm"), wasm, 0o644); err != nil {
		return fmt.Errorf("write plugin.wasm: %w", err)
	}

	return nil
}

// manifestFor returns the cached manifest for registry, fetching and
// parsing it on first use. A prior failure is cached too, so repeated
// plugins pointed at a broken registry fail fast.
func (r *Resolver) manifestFor(ctx context.Context, registry string) (*Manifest, error) {
	if cached, ok := r.manifests.Load(registry); ok {
		result := cached.(*manifestResult)
		return result.manifest, result.err
	}

	raw, err := r.fetcher.GetFileFromRegistry(ctx, registry, "plugins.json")
	if err != nil {
		result := &manifestResult{err: fmt.Errorf("fetch plugins.json: %w", err)}
		actual, _ := r.manifests.LoadOrStore(registry, result)
		return actual.(*manifestResult).manifest, actual.(*manifestResult).err
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		result := &manifestResult{err: fmt.Errorf("decode plugins.json: %w", err)}
		actual, _ := r.manifests.LoadOrStore(registry, result)
		return actual.(*manifestResult).manifest, actual.(*manifestResult).err
	}

	result := &manifestResult{manifest: &manifest}
	actual, _ := r.manifests.LoadOrStore(registry, result)
	return actual.(*manifestResult).manifest, actual.(*manifestResult).err
}

// ParseRef parses a "[<registry>/]<name>[:<version>]" plugin
// reference. The registry defaults to the official plugin registry
// and the version defaults to "latest".
func ParseRef(raw string) (PluginRef, error) {
	if raw == "" {
		return PluginRef{}, fmt.Errorf("empty plugin reference")
	}

	registry := defaultRegistry
	nameVersion := raw
	if idx := strings.LastIndex(raw, "/"); idx != -1 {
		registry = raw[:idx]
		nameVersion = raw[idx+1:]
	}

	name := nameVersion
	pluginVersion := "latest"
	if idx := strings.LastIndex(nameVersion, ":"); idx != -1 {
		name = nameVersion[:idx]
		pluginVersion = nameVersion[idx+1:]
	}

	if name == "" {
		return PluginRef{}, fmt.Errorf("empty plugin name in reference %q", raw)
	}

	return PluginRef{Registry: registry, Name: name, Version: pluginVersion}, nil
}

// selectVersion picks the concrete version to use for ref out of
// versions, honoring "latest" resolution (newest non-deprecated,
// host-compatible version, scanning newest-to-oldest) or an exact
// requested version (must still be host-compatible; a deprecated exact
// match is allowed but warned about).
func selectVersion(ref PluginRef, versions []ManifestPluginVersion, logger *slog.Logger) (string, error) {
	if ref.Version == "latest" {
		for i := len(versions) - 1; i >= 0; i-- {
			v := versions[i]
			if v.Deprecated || !version.CompatiblePrefix(v.CompatibleBotVersion) {
				continue
			}
			return v.Version, nil
		}
		return "", fmt.Errorf("no non-deprecated, host-compatible version available for %q", ref.Name)
	}

	for _, v := range versions {
		if v.Version != ref.Version || !version.CompatiblePrefix(v.CompatibleBotVersion) {
			continue
		}
		if v.Deprecated {
			logger.Warn("requested plugin version is deprecated", "plugin", ref.Name, "version", v.Version, "reason", v.DeprecationReason)
		}
		return v.Version, nil
	}

	return "", fmt.Errorf("version %q of plugin %q not found or not host-compatible", ref.Version, ref.Name)
}
