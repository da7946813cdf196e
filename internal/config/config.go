package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. APPROVAL_PORT.
const EnvPrefix = "APPROVAL_"

type Config struct {
	Server ServerConfig `yaml:"server"`
	Stream StreamConfig `yaml:"stream"`
	Log    LogConfig    `yaml:"log"`
	Feed   FeedConfig   `yaml:"feed"`
	Mock   MockConfig   `yaml:"mock"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	Host            string        `yaml:"host" env:"HOST"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// StreamConfig tunes the Subscribe streams.
type StreamConfig struct {
	BufferSize   int           `yaml:"buffer_size" env:"STREAM_BUFFER_SIZE"`
	PingInterval time.Duration `yaml:"ping_interval" env:"STREAM_PING_INTERVAL"`
	PongTimeout  time.Duration `yaml:"pong_timeout" env:"STREAM_PONG_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"STREAM_WRITE_TIMEOUT"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// FeedConfig enables the NATS activity feed when NATSURL is set.
type FeedConfig struct {
	NATSURL       string `yaml:"nats_url" env:"NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX"`
}

// MockConfig drives the demo proposal generator.
type MockConfig struct {
	Enabled  bool          `yaml:"enabled" env:"MOCK"`
	Interval time.Duration `yaml:"interval" env:"MOCK_INTERVAL"`
}

// Default returns the built-in configuration without reading a file or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            50051,
			Host:            "127.0.0.1",
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Stream: StreamConfig{
			BufferSize:   64,
			PingInterval: 30 * time.Second,
			PongTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Feed: FeedConfig{
			SubjectPrefix: "approval.sessions",
		},
		Mock: MockConfig{
			Interval: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadOrDefault behaves like Load but falls back to defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("environment overrides are invalid: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Stream.BufferSize <= 0 {
		return fmt.Errorf("stream.buffer_size must be positive, got %d", c.Stream.BufferSize)
	}
	for name, d := range map[string]time.Duration{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"stream.ping_interval":    c.Stream.PingInterval,
		"stream.pong_timeout":     c.Stream.PongTimeout,
		"stream.write_timeout":    c.Stream.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Stream.PongTimeout <= c.Stream.PingInterval {
		return fmt.Errorf("stream.pong_timeout (%s) must exceed stream.ping_interval (%s)",
			c.Stream.PongTimeout, c.Stream.PingInterval)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Mock.Enabled && c.Mock.Interval <= 0 {
		return fmt.Errorf("mock.interval must be positive when mock is enabled")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
