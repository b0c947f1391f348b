// Package config loads and validates mirrorsync configuration from a
// YAML file, MIRRORSYNC_ environment variables and command-line flags.
package config

import "time"

// Default configuration values.
const (
	// DefaultInterval is the sleep between reconciliation cycles.
	DefaultInterval = 30 * time.Second

	// DefaultAlgorithm is the fingerprint algorithm.
	DefaultAlgorithm = "sha256"

	// DefaultChunkSize is the read size used while fingerprinting.
	DefaultChunkSize = "64K"

	// DefaultBufferSize is the copy buffer size used by the executor.
	DefaultBufferSize = "64K"

	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "MIRRORSYNC"

	// AppName names the XDG subdirectories.
	AppName = "mirrorsync"
)

// DefaultExclusions are patterns skipped in both trees unless overridden.
var DefaultExclusions = []string{
	".mirrorsync-tmp-*",
}
