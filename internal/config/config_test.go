package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3.0, cfg.Engine.MinRequestIntervalSeconds)
	assert.Equal(t, 15, cfg.Engine.CacheTTLMinutes)
	assert.False(t, cfg.Engine.AllowMockData)
	assert.False(t, cfg.Engine.EnableSecondaryProvider)
	assert.False(t, cfg.Engine.EnableAlternateSymbols)
	assert.Equal(t, "Europe/Berlin", cfg.Engine.DisplayTimezone)
	assert.Equal(t, 3, cfg.Archive.RetentionDays)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3*time.Second, cfg.MinRequestInterval())
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 72*time.Hour, cfg.ArchiveRetention())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, cfg.Engine)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"engine": {
			"min_request_interval_seconds": 1.5,
			"cache_ttl_minutes": 5,
			"allow_mock_data": true,
			"display_timezone": "UTC"
		},
		"archive": {"chart_cache_retention_days": 10}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.Engine.MinRequestIntervalSeconds)
	assert.Equal(t, 5, cfg.Engine.CacheTTLMinutes)
	assert.True(t, cfg.Engine.AllowMockData)
	assert.Equal(t, 10, cfg.Archive.RetentionDays)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine": {"min_request_interval_seconds": 1.0}}`), 0o644))

	t.Setenv("MIN_REQUEST_INTERVAL_SECONDS", "7.5")
	t.Setenv("ENABLE_ALTERNATE_SYMBOLS", "true")
	t.Setenv("FX_API_KEY", "abc123")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7.5, cfg.Engine.MinRequestIntervalSeconds)
	assert.True(t, cfg.Engine.EnableAlternateSymbols)
	assert.Equal(t, "abc123", cfg.Providers.FXAPIKey)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "negative_interval",
			mutate: func(c *Config) { c.Engine.MinRequestIntervalSeconds = -1 },
		},
		{
			name:   "zero_interval",
			mutate: func(c *Config) { c.Engine.MinRequestIntervalSeconds = 0 },
		},
		{
			name:   "zero_cache_ttl",
			mutate: func(c *Config) { c.Engine.CacheTTLMinutes = 0 },
		},
		{
			name:   "bad_timezone",
			mutate: func(c *Config) { c.Engine.DisplayTimezone = "Mars/Olympus" },
		},
		{
			name:   "negative_retention",
			mutate: func(c *Config) { c.Archive.RetentionDays = -1 },
		},
		{
			name:   "bad_log_level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
		},
		{
			name:   "file_output_without_path",
			mutate: func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDisplayLocation(t *testing.T) {
	cfg := Default()
	cfg.Engine.DisplayTimezone = "UTC"
	assert.Equal(t, time.UTC, cfg.DisplayLocation())
}
