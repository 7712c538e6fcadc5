package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Display.Enabled)
	assert.False(t, cfg.Save.Enabled)
	assert.False(t, cfg.Offload.Enabled)
	assert.Equal(t, 16, cfg.Offload.Capacity)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverridesDefaults(t *testing.T) {
	doc := `
split:
  channel: true
save:
  enabled: true
  directory: /data/runs
  name: NightRun
offload:
  enabled: true
  capacity: 4
  first_timepoint_only: false
logging:
  level: debug
  output: none
`
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.True(t, cfg.Split.Channel)
	assert.False(t, cfg.Split.Position)
	assert.True(t, cfg.Save.Enabled)
	assert.Equal(t, "/data/runs", cfg.Save.Directory)
	assert.Equal(t, "NightRun", cfg.Save.Name)
	assert.Equal(t, 4, cfg.Offload.Capacity)
	assert.False(t, cfg.Offload.FirstTimepoint)
	// untouched sections keep their defaults
	assert.True(t, cfg.Display.Enabled)
	assert.Equal(t, 32, cfg.Snapshot.ChunkCacheSize)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(strings.NewReader("split: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestValidateErrors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"save without dir", func(c *Config) { c.Save.Enabled = true }, "save.directory"},
		{"offload zero capacity", func(c *Config) { c.Offload.Enabled = true; c.Offload.Capacity = 0 }, "offload.capacity"},
		{"negative cache", func(c *Config) { c.Snapshot.ChunkCacheSize = -1 }, "chunk_cache_size"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("display:\n  enabled: false\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Display.Enabled)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildLogger(t *testing.T) {
	lg := (&LoggingConfig{Level: "debug", Output: "none"}).BuildLogger()
	require.NotNil(t, lg)
	assert.True(t, lg.Enabled(context.Background(), slog.LevelDebug))

	lg = (&LoggingConfig{Level: "error", Output: "none"}).BuildLogger()
	assert.False(t, lg.Enabled(context.Background(), slog.LevelInfo))
}
