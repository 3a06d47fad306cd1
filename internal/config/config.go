package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the validation client.
type Config struct {
	API   APIConfig
	Poll  PollConfig
	Cache CacheConfig
}

type APIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type PollConfig struct {
	Interval time.Duration
}

type CacheConfig struct {
	// RedisURL selects the Redis-backed result cache; when empty the
	// in-process cache is used.
	RedisURL  string
	ResultTTL time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			BaseURL: os.Getenv("LCVALIDATE_API_BASE_URL"),
			APIKey:  os.Getenv("LCVALIDATE_API_KEY"),
			Timeout: envDuration("LCVALIDATE_API_TIMEOUT", 30*time.Second),
		},
		Poll: PollConfig{
			Interval: envDurationMillis("LCVALIDATE_POLL_INTERVAL_MS", 2000*time.Millisecond),
		},
		Cache: CacheConfig{
			RedisURL:  os.Getenv("LCVALIDATE_REDIS_URL"),
			ResultTTL: envDuration("LCVALIDATE_RESULT_TTL", 30*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("LCVALIDATE_API_BASE_URL is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("LCVALIDATE_API_BASE_URL must start with http:// or https://, got %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("LCVALIDATE_API_TIMEOUT must be positive")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("LCVALIDATE_POLL_INTERVAL_MS must be positive")
	}

	return nil
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationMillis(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(ms) * time.Millisecond
}
