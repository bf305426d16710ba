package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Environment: "test",
		LogLevel:    "debug",
		Matcher: MatcherConfig{
			DefaultThreshold: 70,
			MinThreshold:     0,
			WindowSize:       100,
			MaxSeriesLength:  1000,
			SearchTimeout:    "5s",
		},
		Session: SessionConfig{TTL: "1h"},
	}
}

func TestLoad_WithDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, config.Server.AllowedOrigins)
	assert.Equal(t, "localhost", config.Redis.Host)
	assert.Equal(t, 6379, config.Redis.Port)
	assert.Equal(t, 0, config.Matcher.Workers)
	assert.Equal(t, 64, config.Matcher.BatchSize)
	assert.Equal(t, 70.0, config.Matcher.DefaultThreshold)
	assert.Equal(t, 100, config.Matcher.WindowSize)
	assert.False(t, config.Matcher.ExcludeSelf)
	assert.Equal(t, 30*time.Second, config.Matcher.SearchTimeoutDuration())
	assert.Equal(t, 24*time.Hour, config.Session.TTLDuration())
	assert.False(t, config.Telemetry.Enabled)
	assert.Equal(t, "celebrum-patterns", config.Telemetry.ServiceName)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENVIRONMENT", "PRODUCTION")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("REDIS_HOST", "prod-redis.example.com")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MATCHER_WORKERS", "6")
	t.Setenv("MATCHER_DEFAULT_THRESHOLD", "85.5")
	t.Setenv("MATCHER_EXCLUDE_SELF", "true")
	t.Setenv("MATCHER_SEARCH_TIMEOUT", "2s")
	t.Setenv("SESSION_TTL", "30m")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "error", config.LogLevel)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "prod-redis.example.com", config.Redis.Host)
	assert.Equal(t, 6380, config.Redis.Port)
	assert.Equal(t, 2, config.Redis.DB)
	assert.Equal(t, 6, config.Matcher.Workers)
	assert.Equal(t, 85.5, config.Matcher.DefaultThreshold)
	assert.True(t, config.Matcher.ExcludeSelf)
	assert.Equal(t, 2*time.Second, config.Matcher.SearchTimeoutDuration())
	assert.Equal(t, 30*time.Minute, config.Session.TTLDuration())
}

func TestLoad_FromConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("matcher:\n  window_size: 50\n  default_threshold: 90\nserver:\n  port: 7070\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Chdir(dir)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, config.Matcher.WindowSize)
	assert.Equal(t, 90.0, config.Matcher.DefaultThreshold)
	assert.Equal(t, 7070, config.Server.Port)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MATCHER_BATCH_SIZE=128\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("MATCHER_BATCH_SIZE") })

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 128, config.Matcher.BatchSize)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MATCHER_DEFAULT_THRESHOLD", "120")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "negative threshold", mutate: func(c *Config) { c.Matcher.DefaultThreshold = -1 }, wantErr: true},
		{name: "min above default", mutate: func(c *Config) { c.Matcher.MinThreshold = 80 }, wantErr: true},
		{name: "negative workers", mutate: func(c *Config) { c.Matcher.Workers = -2 }, wantErr: true},
		{name: "window too small", mutate: func(c *Config) { c.Matcher.WindowSize = 1 }, wantErr: true},
		{name: "no series length", mutate: func(c *Config) { c.Matcher.MaxSeriesLength = 0 }, wantErr: true},
		{name: "bad timeout", mutate: func(c *Config) { c.Matcher.SearchTimeout = "soon" }, wantErr: true},
		{name: "bad ttl", mutate: func(c *Config) { c.Session.TTL = "forever" }, wantErr: true},
		{name: "empty timeout", mutate: func(c *Config) { c.Matcher.SearchTimeout = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurations_Fallbacks(t *testing.T) {
	assert.Equal(t, time.Duration(0), MatcherConfig{}.SearchTimeoutDuration())
	assert.Equal(t, 24*time.Hour, SessionConfig{}.TTLDuration())
	assert.Equal(t, 24*time.Hour, SessionConfig{TTL: "-1h"}.TTLDuration())
}
