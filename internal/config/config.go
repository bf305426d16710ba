package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Matcher     MatcherConfig   `mapstructure:"matcher"`
	Session     SessionConfig   `mapstructure:"session"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MatcherConfig tunes the similarity search. Workers of 0 means one per
// logical core.
type MatcherConfig struct {
	Workers          int     `mapstructure:"workers"`
	BatchSize        int     `mapstructure:"batch_size"`
	DefaultThreshold float64 `mapstructure:"default_threshold"`
	MinThreshold     float64 `mapstructure:"min_threshold"`
	ExcludeSelf      bool    `mapstructure:"exclude_self"`
	WindowSize       int     `mapstructure:"window_size"`
	MaxSeriesLength  int     `mapstructure:"max_series_length"`
	SearchTimeout    string  `mapstructure:"search_timeout"`
}

// SearchTimeoutDuration returns the parsed search timeout, or zero when unset.
func (c MatcherConfig) SearchTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.SearchTimeout)
	if err != nil {
		return 0
	}
	return d
}

type SessionConfig struct {
	TTL string `mapstructure:"ttl"`
}

// TTLDuration returns the parsed session TTL, defaulting to 24h.
func (c SessionConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	m := c.Matcher
	if m.DefaultThreshold < 0 || m.DefaultThreshold > 100 {
		return fmt.Errorf("matcher.default_threshold must be between 0 and 100, got %v", m.DefaultThreshold)
	}
	if m.MinThreshold < 0 || m.MinThreshold > m.DefaultThreshold {
		return fmt.Errorf("matcher.min_threshold must be between 0 and default_threshold (%v), got %v", m.DefaultThreshold, m.MinThreshold)
	}
	if m.Workers < 0 {
		return fmt.Errorf("matcher.workers must not be negative, got %d", m.Workers)
	}
	if m.WindowSize < 2 {
		return fmt.Errorf("matcher.window_size must be at least 2, got %d", m.WindowSize)
	}
	if m.MaxSeriesLength <= 0 {
		return errors.New("matcher.max_series_length must be positive")
	}
	if m.SearchTimeout != "" {
		if _, err := time.ParseDuration(m.SearchTimeout); err != nil {
			return fmt.Errorf("invalid matcher.search_timeout: %w", err)
		}
	}
	if c.Session.TTL != "" {
		if _, err := time.ParseDuration(c.Session.TTL); err != nil {
			return fmt.Errorf("invalid session.ttl: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Matcher; window and threshold match the chart's slider defaults
	v.SetDefault("matcher.workers", 0)
	v.SetDefault("matcher.batch_size", 64)
	v.SetDefault("matcher.default_threshold", 70.0)
	v.SetDefault("matcher.min_threshold", 0.0)
	v.SetDefault("matcher.exclude_self", false)
	v.SetDefault("matcher.window_size", 100)
	v.SetDefault("matcher.max_series_length", 200000)
	v.SetDefault("matcher.search_timeout", "30s")

	// Session
	v.SetDefault("session.ttl", "24h")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "celebrum-patterns")
	v.SetDefault("telemetry.service_version", "1.0.0")
}
