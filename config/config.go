// Package config holds the user-facing configuration surface of the
// materializer: splitting rules, persistence, queue sizing, and logging.
// These values come from the GUI layer (or a YAML file for the simulator)
// and are treated as opaque inputs by the core.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// SplitConfig decides which axes become selectors across separate array
// groups.
type SplitConfig struct {
	Channel  bool `yaml:"channel"`
	Position bool `yaml:"position"`
}

// SaveConfig selects temporary vs persistent backing for a run.
type SaveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	Name      string `yaml:"name"`
}

// DisplayConfig controls the display synchronizer.
type DisplayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// OffloadConfig controls the analysis offload queue.
type OffloadConfig struct {
	Enabled        bool `yaml:"enabled"`
	Capacity       int  `yaml:"capacity"`
	FirstTimepoint bool `yaml:"first_timepoint_only"`
}

// SnapshotConfig controls read-side behavior of snapshots.
type SnapshotConfig struct {
	ChunkCacheSize int `yaml:"chunk_cache_size"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stdout", "stderr", "none"
}

// Config is the top-level configuration struct.
type Config struct {
	Split    SplitConfig    `yaml:"split"`
	Save     SaveConfig     `yaml:"save"`
	Display  DisplayConfig  `yaml:"display"`
	Offload  OffloadConfig  `yaml:"offload"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns the configuration used when no file is given: live
// display on, nothing persisted, offloading off.
func Default() *Config {
	return &Config{
		Display: DisplayConfig{Enabled: true},
		Offload: OffloadConfig{
			Capacity:       16,
			FirstTimepoint: true,
		},
		Snapshot: SnapshotConfig{ChunkCacheSize: 32},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
		},
	}
}

// Load reads configuration from an io.Reader on top of the defaults.
// Separated from LoadFile for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Save.Enabled && c.Save.Directory == "" {
		return fmt.Errorf("save.enabled requires save.directory")
	}
	if c.Offload.Enabled && c.Offload.Capacity < 1 {
		return fmt.Errorf("offload.capacity must be >= 1, got %d", c.Offload.Capacity)
	}
	if c.Snapshot.ChunkCacheSize < 0 {
		return fmt.Errorf("snapshot.chunk_cache_size must be >= 0, got %d", c.Snapshot.ChunkCacheSize)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr", "none":
	default:
		return fmt.Errorf("unknown logging.output %q", c.Logging.Output)
	}
	return nil
}

// BuildLogger constructs the slog logger described by the logging section.
func (c *LoggingConfig) BuildLogger() *slog.Logger {
	var w io.Writer
	switch c.Output {
	case "stdout":
		w = os.Stdout
	case "none":
		w = io.Discard
	default:
		w = os.Stderr
	}
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
