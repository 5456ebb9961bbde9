// Package config provides configuration for the market-data engine: typed
// structures, JSON file loading, environment variable overrides, and
// validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Engine    EngineConfig   `json:"engine"`
	Providers ProviderConfig `json:"providers"`
	Archive   ArchiveConfig  `json:"archive"`
	Logging   LoggingConfig  `json:"logging"`
}

// EngineConfig governs the fetch pipeline, rate limiter, and cache.
type EngineConfig struct {
	// MinRequestIntervalSeconds is the starting spacing between upstream
	// calls. Throttling can raise the effective interval, never lower it.
	MinRequestIntervalSeconds float64 `json:"min_request_interval_seconds" env:"MIN_REQUEST_INTERVAL_SECONDS"`

	// CacheTTLMinutes bounds the age of in-memory price cache entries.
	CacheTTLMinutes int `json:"cache_ttl_minutes" env:"CACHE_TTL_MINUTES"`

	// AllowMockData enables the synthetic fallback tier. Off by default;
	// synthetic series are placeholders, not market data.
	AllowMockData bool `json:"allow_mock_data" env:"ALLOW_MOCK_DATA"`

	// EnableSecondaryProvider enables the FX intraday fallback tier.
	EnableSecondaryProvider bool `json:"enable_secondary_provider" env:"ENABLE_SECONDARY_PROVIDER"`

	// EnableAlternateSymbols enables trying alternate symbol spellings.
	EnableAlternateSymbols bool `json:"enable_alternate_symbols" env:"ENABLE_ALTERNATE_SYMBOLS"`

	// DisplayTimezone is the IANA zone used when rendering series output.
	DisplayTimezone string `json:"display_timezone" env:"DISPLAY_TIMEZONE"`
}

// ProviderConfig configures the upstream API clients.
type ProviderConfig struct {
	ChartBaseURL string `json:"chart_base_url" env:"CHART_BASE_URL"`
	FXBaseURL    string `json:"fx_base_url" env:"FX_BASE_URL"`
	FXAPIKey     string `json:"fx_api_key" env:"FX_API_KEY"`
}

// ArchiveConfig configures the on-disk series archive. The retention window
// governs that artifact, not the in-memory price cache.
type ArchiveConfig struct {
	Path          string `json:"path" env:"ARCHIVE_PATH"`
	RetentionDays int    `json:"chart_cache_retention_days" env:"CHART_CACHE_RETENTION_DAYS"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`             // debug, info, warn, error
	Format     string `json:"format" env:"LOG_FORMAT"`           // json, text
	Output     string `json:"output" env:"LOG_OUTPUT"`           // stdout, stderr, file
	FilePath   string `json:"file_path" env:"LOG_FILE_PATH"`     // used when output is file
	MaxSizeMB  int    `json:"max_size_mb" env:"LOG_MAX_SIZE"`    // rotation threshold
	MaxBackups int    `json:"max_backups" env:"LOG_MAX_BACKUPS"` // rotated files kept
	MaxAgeDays int    `json:"max_age_days" env:"LOG_MAX_AGE"`    // rotated file age limit
	Compress   bool   `json:"compress" env:"LOG_COMPRESS"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MinRequestIntervalSeconds: 3.0,
			CacheTTLMinutes:           15,
			AllowMockData:             false,
			EnableSecondaryProvider:   false,
			EnableAlternateSymbols:    false,
			DisplayTimezone:           "Europe/Berlin",
		},
		Providers: ProviderConfig{},
		Archive: ArchiveConfig{
			RetentionDays: 3,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// environment overrides, in that order, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides config fields from environment variables.
func (c *Config) applyEnv() {
	setFloat(&c.Engine.MinRequestIntervalSeconds, "MIN_REQUEST_INTERVAL_SECONDS")
	setInt(&c.Engine.CacheTTLMinutes, "CACHE_TTL_MINUTES")
	setBool(&c.Engine.AllowMockData, "ALLOW_MOCK_DATA")
	setBool(&c.Engine.EnableSecondaryProvider, "ENABLE_SECONDARY_PROVIDER")
	setBool(&c.Engine.EnableAlternateSymbols, "ENABLE_ALTERNATE_SYMBOLS")
	setString(&c.Engine.DisplayTimezone, "DISPLAY_TIMEZONE")

	setString(&c.Providers.ChartBaseURL, "CHART_BASE_URL")
	setString(&c.Providers.FXBaseURL, "FX_BASE_URL")
	setString(&c.Providers.FXAPIKey, "FX_API_KEY")

	setString(&c.Archive.Path, "ARCHIVE_PATH")
	setInt(&c.Archive.RetentionDays, "CHART_CACHE_RETENTION_DAYS")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Logging.Output, "LOG_OUTPUT")
	setString(&c.Logging.FilePath, "LOG_FILE_PATH")
	setInt(&c.Logging.MaxSizeMB, "LOG_MAX_SIZE")
	setInt(&c.Logging.MaxBackups, "LOG_MAX_BACKUPS")
	setInt(&c.Logging.MaxAgeDays, "LOG_MAX_AGE")
	setBool(&c.Logging.Compress, "LOG_COMPRESS")
}

// Validate checks cross-field constraints and rejects values the engine
// cannot run with.
func (c *Config) Validate() error {
	// Zero is rejected rather than treated as "no spacing": the limiter
	// falls back to its default for non-positive intervals, so a configured
	// zero would silently become 3s.
	if c.Engine.MinRequestIntervalSeconds <= 0 {
		return fmt.Errorf("min_request_interval_seconds must be positive, got %f", c.Engine.MinRequestIntervalSeconds)
	}
	if c.Engine.CacheTTLMinutes <= 0 {
		return fmt.Errorf("cache_ttl_minutes must be positive, got %d", c.Engine.CacheTTLMinutes)
	}
	if _, err := time.LoadLocation(c.Engine.DisplayTimezone); err != nil {
		return fmt.Errorf("invalid display_timezone %q: %w", c.Engine.DisplayTimezone, err)
	}
	if c.Archive.RetentionDays < 0 {
		return fmt.Errorf("chart_cache_retention_days must be non-negative, got %d", c.Archive.RetentionDays)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("log output is file but file_path is empty")
	}
	return nil
}

// MinRequestInterval returns the engine's request spacing as a duration.
func (c *Config) MinRequestInterval() time.Duration {
	return time.Duration(c.Engine.MinRequestIntervalSeconds * float64(time.Second))
}

// CacheTTL returns the in-memory cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Engine.CacheTTLMinutes) * time.Minute
}

// ArchiveRetention returns the on-disk archive retention as a duration.
func (c *Config) ArchiveRetention() time.Duration {
	return time.Duration(c.Archive.RetentionDays) * 24 * time.Hour
}

// DisplayLocation loads the configured display timezone. Validate has
// already checked that the zone exists.
func (c *Config) DisplayLocation() *time.Location {
	loc, err := time.LoadLocation(c.Engine.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
