package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("UPSTREAM_API_URL", "http://upstream.test/api/v2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.ServerPort)
	assert.Equal(t, ModeWithFallback, cfg.ProviderMode)
	assert.Equal(t, 12*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 6*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 400*time.Millisecond, cfg.RetryDelay)
	assert.True(t, cfg.FallbackEnabled)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("UPSTREAM_API_URL", "http://upstream.test/api/v2")
	t.Setenv("PORT", "9090")
	t.Setenv("PROVIDER_MODE", ModePrimaryOnly)
	t.Setenv("CACHE_TTL_HOURS", "2")
	t.Setenv("RETRY_DELAY_MS", "50")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, ModePrimaryOnly, cfg.ProviderMode)
	assert.Equal(t, 2*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	viper.Reset()
	t.Setenv("UPSTREAM_API_URL", "http://upstream.test/api/v2")
	t.Setenv("PROVIDER_MODE", "roundrobin")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresUpstreamURLForAPIModes(t *testing.T) {
	viper.Reset()
	t.Setenv("PROVIDER_MODE", ModePrimaryOnly)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAlternateOnlyNeedsNoUpstreamURL(t *testing.T) {
	viper.Reset()
	t.Setenv("PROVIDER_MODE", ModeAlternateOnly)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeAlternateOnly, cfg.ProviderMode)
}
