package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LCVALIDATE_API_BASE_URL", "https://api.trdrhub.example.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.trdrhub.example.com", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2000*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, "", cfg.Cache.RedisURL)
	assert.Equal(t, 30*time.Minute, cfg.Cache.ResultTTL)
}

func TestLoad_MissingBaseURL(t *testing.T) {
	t.Setenv("LCVALIDATE_API_BASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LCVALIDATE_API_BASE_URL is required")
}

func TestLoad_BaseURLSchemeValidated(t *testing.T) {
	t.Setenv("LCVALIDATE_API_BASE_URL", "api.trdrhub.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must start with http:// or https://")
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LCVALIDATE_API_KEY", "lc_test_key")
	t.Setenv("LCVALIDATE_API_TIMEOUT", "10s")
	t.Setenv("LCVALIDATE_POLL_INTERVAL_MS", "500")
	t.Setenv("LCVALIDATE_REDIS_URL", "redis://localhost:6379")
	t.Setenv("LCVALIDATE_RESULT_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "lc_test_key", cfg.API.APIKey)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, "redis://localhost:6379", cfg.Cache.RedisURL)
	assert.Equal(t, time.Hour, cfg.Cache.ResultTTL)
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LCVALIDATE_API_TIMEOUT", "not-a-duration")
	t.Setenv("LCVALIDATE_POLL_INTERVAL_MS", "two thousand")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2000*time.Millisecond, cfg.Poll.Interval)
}
