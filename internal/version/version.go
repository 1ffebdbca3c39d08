// Package version provides host version information used both for
// display and for registry compatible-version-prefix checks.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version of the host (set via ldflags)
	Version = "0.1.0"

	// GitCommit is the git commit hash (set via ldflags)
	GitCommit = "unknown"

	// BuildTime is the build timestamp (set via ldflags)
	BuildTime = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

// Info returns formatted version info.
func Info() string {
	return fmt.Sprintf("discord-bot %s (commit: %s, built: %s, %s)",
		Version, GitCommit, BuildTime, GoVersion)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Full returns detailed version info as a map.
func Full() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": GoVersion,
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// CompatiblePrefix reports whether compatibleHostVersion is a prefix
// match of the host's own version, comparing only as many characters
// as compatibleHostVersion specifies. A plugin version declaring
// compatible_host_version "0.1" is accepted by host version "0.1.0"
// but not by "0.2.0".
func CompatiblePrefix(compatibleHostVersion string) bool {
	if len(compatibleHostVersion) > len(Version) {
		return false
	}
	return Version[:len(compatibleHostVersion)] == compatibleHostVersion
}
