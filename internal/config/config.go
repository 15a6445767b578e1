// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/aniflux/aniflux/internal/constants"
)

// Provider selection modes.
const (
	ModePrimaryOnly   = "primary"   // only the HTTP API adapter
	ModeWithFallback  = "fallback"  // HTTP API adapter, scraper on failure
	ModeAlternateOnly = "alternate" // only the in-process scraper
)

// Config holds all application configuration.
type Config struct {
	// Server
	ServerPort string
	LogLevel   string

	// Upstream providers
	UpstreamAPIURL  string
	UpstreamTimeout time.Duration
	ProviderMode    string

	// Result cache
	RedisURL string
	CacheTTL time.Duration

	// Resolution engine
	FallbackEnabled bool
	RetryDelay      time.Duration
	EmbedBaseURL    string

	// Storage
	DatabaseDir string
}

// Load loads configuration from environment variables and an optional .env
// file. Environment variables take precedence.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	viper.SetDefault("PORT", constants.DefaultPort)
	viper.SetDefault("LOG_LEVEL", constants.DefaultLogLevel)
	viper.SetDefault("UPSTREAM_TIMEOUT_SECONDS", int(constants.DefaultUpstreamTimeout/time.Second))
	viper.SetDefault("PROVIDER_MODE", ModeWithFallback)
	viper.SetDefault("CACHE_TTL_HOURS", int(constants.DefaultCacheTTL/time.Hour))
	viper.SetDefault("FALLBACK_ENABLED", true)
	viper.SetDefault("RETRY_DELAY_MS", int(constants.DefaultRetryDelay/time.Millisecond))
	viper.SetDefault("EMBED_BASE_URL", constants.DefaultEmbedBase)
	viper.SetDefault("DATABASE_DIR", ".")

	cfg := &Config{
		ServerPort: viper.GetString("PORT"),
		LogLevel:   viper.GetString("LOG_LEVEL"),

		UpstreamAPIURL:  viper.GetString("UPSTREAM_API_URL"),
		UpstreamTimeout: time.Duration(viper.GetInt("UPSTREAM_TIMEOUT_SECONDS")) * time.Second,
		ProviderMode:    viper.GetString("PROVIDER_MODE"),

		RedisURL: viper.GetString("REDIS_URL"),
		CacheTTL: time.Duration(viper.GetInt("CACHE_TTL_HOURS")) * time.Hour,

		FallbackEnabled: viper.GetBool("FALLBACK_ENABLED"),
		RetryDelay:      time.Duration(viper.GetInt("RETRY_DELAY_MS")) * time.Millisecond,
		EmbedBaseURL:    viper.GetString("EMBED_BASE_URL"),

		DatabaseDir: viper.GetString("DATABASE_DIR"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks mode values and required pairings. The upstream API URL is
// only required when the HTTP API adapter participates in provider selection.
func (c *Config) Validate() error {
	switch c.ProviderMode {
	case ModePrimaryOnly, ModeWithFallback, ModeAlternateOnly:
	default:
		return fmt.Errorf("PROVIDER_MODE must be one of %s, %s, %s", ModePrimaryOnly, ModeWithFallback, ModeAlternateOnly)
	}

	if c.ProviderMode != ModeAlternateOnly && c.UpstreamAPIURL == "" {
		return fmt.Errorf("UPSTREAM_API_URL is required for provider mode %q", c.ProviderMode)
	}

	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = constants.DefaultUpstreamTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = constants.DefaultCacheTTL
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = constants.DefaultRetryDelay
	}
	return nil
}
