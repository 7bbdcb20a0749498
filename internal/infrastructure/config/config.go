package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Channel     ChannelConfig     `yaml:"channel" toml:"channel"`
	Events      EventsConfig      `yaml:"events" toml:"events"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" toml:"diagnostics"`
	Breaker     BreakerConfig     `yaml:"breaker" toml:"breaker"`
	Logging     LogConfig         `yaml:"logging" toml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" yaml:"port" toml:"port"`
	Host string `envconfig:"HOST" yaml:"host" toml:"host"`
}

// ChannelConfig holds the outbound gRPC channel settings.
type ChannelConfig struct {
	Host                    string  `envconfig:"GRPC_HOST" yaml:"host" toml:"host"`
	Insecure                bool    `envconfig:"GRPC_INSECURE" yaml:"insecure" toml:"insecure"`
	Compression             bool    `envconfig:"GRPC_COMPRESSION" yaml:"compression" toml:"compression"`
	Compressor              string  `envconfig:"GRPC_COMPRESSOR" yaml:"compressor" toml:"compressor"`
	ResponseSizeLimit       int     `envconfig:"GRPC_RESPONSE_SIZE_LIMIT" yaml:"response_size_limit" toml:"response_size_limit"`
	KeepAlive               bool    `envconfig:"GRPC_KEEPALIVE" yaml:"keepalive" toml:"keepalive"`
	KeepAliveTime           int     `envconfig:"GRPC_KEEPALIVE_TIME" yaml:"keepalive_time" toml:"keepalive_time"`
	KeepAliveTimeout        int     `envconfig:"GRPC_KEEPALIVE_TIMEOUT" yaml:"keepalive_timeout" toml:"keepalive_timeout"`
	InitOnStart             bool    `envconfig:"GRPC_INIT_ON_START" yaml:"init_on_start" toml:"init_on_start"`
	ResetOnTransientFailure bool    `envconfig:"GRPC_RESET_ON_TRANSIENT_FAILURE" yaml:"reset_on_transient_failure" toml:"reset_on_transient_failure"`
	AutoResetRate           float64 `envconfig:"GRPC_AUTO_RESET_RATE" yaml:"auto_reset_rate" toml:"auto_reset_rate"`
	AutoResetBurst          int     `envconfig:"GRPC_AUTO_RESET_BURST" yaml:"auto_reset_burst" toml:"auto_reset_burst"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	Buffer int `envconfig:"EVENT_BUFFER" yaml:"buffer" toml:"buffer"`
}

// DiagnosticsConfig controls status notifications.
type DiagnosticsConfig struct {
	Enabled bool `envconfig:"DIAGNOSTICS_ENABLED" yaml:"enabled" toml:"enabled"`
}

// BreakerConfig holds the call-start circuit breaker settings.
type BreakerConfig struct {
	Enabled        bool `envconfig:"BREAKER_ENABLED" yaml:"enabled" toml:"enabled"`
	MaxFailures    int  `envconfig:"BREAKER_MAX_FAILURES" yaml:"max_failures" toml:"max_failures"`
	TimeoutSeconds int  `envconfig:"BREAKER_TIMEOUT" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// Load loads configuration from defaults and environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile layers defaults, then the optional file at path, then the
// environment. The file format is picked by extension (.yaml, .yml, .toml).
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Channel: ChannelConfig{
			Compressor:       "gzip",
			KeepAliveTime:    30,
			KeepAliveTimeout: 10,
			AutoResetRate:    1,
			AutoResetBurst:   3,
		},
		Events: EventsConfig{
			Buffer: 1024,
		},
		Breaker: BreakerConfig{
			Enabled:        true,
			MaxFailures:    5,
			TimeoutSeconds: 30,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
