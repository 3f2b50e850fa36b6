package config

import (
	"fmt"
	"time"

	"github.com/robceliesius/plugin-ably/internal/host"
	"github.com/robceliesius/plugin-ably/internal/plugin"
)

// Realtime drivers.
const (
	DriverMemory = "memory"
	DriverAbly   = "ably"
)

// TokenConfig configures the credentials served on /token.
type TokenConfig struct {
	// Secret enables the endpoint. Empty disables it.
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	// WSActionLimit caps websocket actions per minute per connection; 0 disables it.
	WSActionLimit     int           `mapstructure:"ws_action_limit" yaml:"ws_action_limit"`

	// Driver selects the realtime backend: memory or ably.
	Driver       string `mapstructure:"driver" yaml:"driver"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	Plugin plugin.Settings `mapstructure:"plugin" yaml:"plugin"`
	Token  TokenConfig     `mapstructure:"token" yaml:"token"`
	// User is the host-authenticated user, if any.
	User   host.User       `mapstructure:"user" yaml:"user"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		WSActionLimit:     120,
		Driver:            DriverMemory,
		DatabasePath:      "history.db",
		Plugin:            plugin.DefaultSettings(),
		Token: TokenConfig{
			Issuer:   "plugin-ably",
			Audience: "realtime",
			TTL:      time.Hour,
		},
	}
}

// Validate checks values the loader cannot.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory, DriverAbly:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.WSActionLimit < 0 {
		return fmt.Errorf("ws action limit must not be negative")
	}
	if c.Token.TTL < 0 {
		return fmt.Errorf("token ttl must not be negative")
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Driver != "" {
		c.Driver = other.Driver
	}
	if other.Plugin.TokenEndpoint != "" {
		c.Plugin.TokenEndpoint = other.Plugin.TokenEndpoint
	}
}
