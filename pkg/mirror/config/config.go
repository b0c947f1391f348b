package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/filter"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/fingerprint"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/logging"
	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// Validation errors.
var (
	ErrMissingSource    = errors.New("source path is required")
	ErrMissingReplica   = errors.New("replica path is required")
	ErrInvalidInterval  = errors.New("interval must be positive")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidWorkers   = errors.New("workers cannot be negative")
	ErrOverlap          = errors.New("source and replica must not overlap")
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level        string                 `mapstructure:"level"`
	Path         string                 `mapstructure:"path"`
	ConsoleLevel string                 `mapstructure:"console_level"`
	Rotation     logging.RotationConfig `mapstructure:"rotation"`
	Components   map[string]string      `mapstructure:"components"`
}

// FingerprintConfig selects how file content is hashed.
type FingerprintConfig struct {
	Algorithm string `mapstructure:"algorithm"`
	ChunkSize string `mapstructure:"chunk_size"`
}

// CacheConfig configures the fingerprint cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // Empty means cache.DefaultPath()
}

// ReplicaOptions tunes how actions are applied to the replica.
type ReplicaOptions struct {
	PruneEmptyDirs bool   `mapstructure:"prune_empty_dirs"`
	BufferSize     string `mapstructure:"buffer_size"`
}

// Config represents the application configuration.
type Config struct {
	Source         string            `mapstructure:"source"`
	Replica        string            `mapstructure:"replica"`
	Interval       time.Duration     `mapstructure:"interval"`
	Exclude        []string          `mapstructure:"exclude"`
	Include        []string          `mapstructure:"include"`
	ExcludeHidden  bool              `mapstructure:"exclude_hidden"`
	Workers        int               `mapstructure:"workers"`
	PIDFile        string            `mapstructure:"pid_file"` // Empty means pidfile.DefaultPath(replica)
	Fingerprint    FingerprintConfig `mapstructure:"fingerprint"`
	Cache          CacheConfig       `mapstructure:"cache"`
	ReplicaOptions ReplicaOptions    `mapstructure:"replica_options"`
	Logging        LoggingConfig     `mapstructure:"logging"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source", "")
	v.SetDefault("replica", "")
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("include", []string{})
	v.SetDefault("exclude_hidden", false)
	v.SetDefault("workers", 0)
	v.SetDefault("pid_file", "")

	v.SetDefault("fingerprint.algorithm", DefaultAlgorithm)
	v.SetDefault("fingerprint.chunk_size", DefaultChunkSize)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", "")

	v.SetDefault("replica_options.prune_empty_dirs", true)
	v.SetDefault("replica_options.buffer_size", DefaultBufferSize)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means logging.DefaultLogPath()
	v.SetDefault("logging.console_level", "")
	v.SetDefault("logging.rotation.max_size", logging.DefaultMaxSize)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.rotation.rotate_on_start", false)
	v.SetDefault("logging.components", map[string]string{
		"poller":   "info",
		"snapshot": "warn",
	})
}

// Prepare configures v to read the config file and MIRRORSYNC_
// environment variables. If cfgFile is empty the file is looked up in
// ConfigDir().
func Prepare(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// Load reads the config file (a missing file is not an error) and
// decodes v into a Config. The result is not validated.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Source, &cfg.Replica, &cfg.Cache.Path, &cfg.Logging.Path, &cfg.PIDFile} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	return &cfg, nil
}

// Validate checks the configuration for values the mirror cannot run
// with.
func (c *Config) Validate() error {
	if c.Source == "" {
		return ErrMissingSource
	}
	if c.Replica == "" {
		return ErrMissingReplica
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, c.Interval)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}

	if _, err := fingerprint.ParseAlgorithm(c.Fingerprint.Algorithm); err != nil {
		return err
	}
	chunk, err := c.ChunkSize()
	if err != nil {
		return fmt.Errorf("fingerprint.chunk_size: %w", err)
	}
	if chunk <= 0 {
		return ErrInvalidChunkSize
	}
	if _, err := c.BufferSize(); err != nil {
		return fmt.Errorf("replica_options.buffer_size: %w", err)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return checkOverlap(c.Source, c.Replica)
}

// checkOverlap rejects a replica equal to, inside, or containing the
// source.
func checkOverlap(source, replica string) error {
	src, err := canonical(source)
	if err != nil {
		return err
	}
	dst, err := canonical(replica)
	if err != nil {
		return err
	}

	if within(src, dst) || within(dst, src) {
		return fmt.Errorf("%w: %s and %s", ErrOverlap, source, replica)
	}
	return nil
}

// canonical returns an absolute path with symlinks resolved in its
// longest existing prefix.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var rest []string
	for dir := abs; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent
	}
}

// within reports whether child is parent or lies beneath it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ChunkSize returns the fingerprint chunk size in bytes.
func (c *Config) ChunkSize() (int64, error) {
	return types.ParseSize(c.Fingerprint.ChunkSize)
}

// BufferSize returns the copy buffer size in bytes. Empty means the
// executor default, reported as 0.
func (c *Config) BufferSize() (int64, error) {
	if c.ReplicaOptions.BufferSize == "" {
		return 0, nil
	}
	return types.ParseSize(c.ReplicaOptions.BufferSize)
}

// Hasher builds the fingerprint hasher described by the configuration.
func (c *Config) Hasher() (*fingerprint.Hasher, error) {
	chunk, err := c.ChunkSize()
	if err != nil {
		return nil, err
	}
	return fingerprint.New(c.Fingerprint.Algorithm, chunk)
}

// Filter builds the exclusion filter described by the configuration.
func (c *Config) Filter() (*filter.Filter, error) {
	return filter.New(
		filter.WithExclude(c.Exclude...),
		filter.WithInclude(c.Include...),
		filter.WithExcludeHidden(c.ExcludeHidden),
	)
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() (logging.Config, error) {
	if _, err := c.Logging.Rotation.Limit(); err != nil {
		return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
	}

	return logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		Rotation:     c.Logging.Rotation,
		Components:   c.Logging.Components,
		ConsoleLevel: c.Logging.ConsoleLevel,
	}, nil
}

// ConfigDir returns $XDG_CONFIG_HOME/mirrorsync.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// WriteDefault writes a commented default config file to path unless
// one already exists. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultFile), 0o644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

const defaultFile = `# mirrorsync configuration

# Tree to mirror and the replica kept identical to it.
source: ""
replica: ""

# Time between reconciliation cycles.
interval: 30s

# Glob patterns skipped in both trees, matched against the relative path
# or the base name.
exclude:
  - ".mirrorsync-tmp-*"
include: []
exclude_hidden: false

# Snapshot walk concurrency (0 = auto).
workers: 0

# PID file guarding the replica (empty = $XDG_DATA_HOME/mirrorsync/<hash>.pid).
pid_file: ""

fingerprint:
  # sha256, sha512, md5 or xxhash
  algorithm: sha256
  chunk_size: 64K

cache:
  # Reuse fingerprints of files whose size and mtime are unchanged.
  enabled: false
  # Empty means $XDG_CACHE_HOME/mirrorsync/fingerprints
  path: ""

replica_options:
  prune_empty_dirs: true
  buffer_size: 64K

logging:
  # debug, info, warn, error, fatal
  level: info
  # Empty means $XDG_STATE_HOME/mirrorsync/mirrorsync.log
  path: ""
  # Mirror log records to stderr at this level (empty = off).
  console_level: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
    # Start each run with a fresh log file.
    rotate_on_start: false
  components:
    poller: info
    snapshot: warn
`
