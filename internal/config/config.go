package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephasrelay"
	"github.com/luciancaetano/kephasrelay/internal/protocol"
	"github.com/luciancaetano/kephasrelay/ws"
)

// Config is the root configuration of a relay instance.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// Channels lists the declared channels. A single "*" entry enables
	// auto-create mode.
	Channels []string  `yaml:"channels"`
	Log      LogConfig `yaml:"log"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	Path           string   `yaml:"path"`
	HealthPath     string   `yaml:"health_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxMessageSize int64    `yaml:"max_message_size"`
}

// RateLimitConfig holds per-connection inbound rate limits.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			Path:           "/ws",
			HealthPath:     "/healthz",
			MaxMessageSize: 1 << 20,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 100,
			Burst:             200,
		},
		Channels: []string{kephasrelay.AutoCreateSentinel},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills fields an explicit file may have blanked.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.Path == "" {
		c.Server.Path = def.Server.Path
	}
	if c.Server.HealthPath == "" {
		c.Server.HealthPath = def.Server.HealthPath
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = def.Server.MaxMessageSize
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with /: %q", c.Server.Path))
	}
	if !strings.HasPrefix(c.Server.HealthPath, "/") {
		errs = append(errs, fmt.Errorf("server.health_path must start with /: %q", c.Server.HealthPath))
	}
	if c.Server.Path == c.Server.HealthPath {
		errs = append(errs, errors.New("server.path and server.health_path must differ"))
	}
	if c.Server.MaxMessageSize <= 0 || c.Server.MaxMessageSize > protocol.MaxPayloadSize {
		errs = append(errs, fmt.Errorf("server.max_message_size must be in (0, %d], got %d", protocol.MaxPayloadSize, c.Server.MaxMessageSize))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MessagesPerSecond <= 0 {
			errs = append(errs, errors.New("rate_limit.messages_per_second must be positive"))
		}
		if c.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("rate_limit.burst must be positive"))
		}
	}

	if err := validateChannels(c.Channels); err != nil {
		errs = append(errs, err)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func validateChannels(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == kephasrelay.AutoCreateSentinel && len(names) > 1 {
			return fmt.Errorf("channels: %q must be the only entry to enable auto-create", kephasrelay.AutoCreateSentinel)
		}
		if strings.TrimSpace(name) == "" {
			return errors.New("channels: empty channel name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("channels: duplicate channel %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ChannelPolicy translates Channels into the relay channel policy.
func (c *Config) ChannelPolicy() ws.ChannelPolicy {
	if len(c.Channels) == 1 && c.Channels[0] == kephasrelay.AutoCreateSentinel {
		return ws.AutoCreate()
	}
	return ws.Channels(c.Channels...)
}

// RelayConfig builds the ws.ServerConfig for this configuration.
func (c *Config) RelayConfig() *ws.ServerConfig {
	limit := ws.NoRateLimit()
	if c.RateLimit.Enabled {
		limit = &ws.RateLimitConfig{
			MessagesPerSecond: rate.Limit(c.RateLimit.MessagesPerSecond),
			Burst:             c.RateLimit.Burst,
			Enabled:           true,
		}
	}

	return &ws.ServerConfig{
		Transport: &ws.TransportConfig{
			Addr:            c.Server.Addr,
			Path:            c.Server.Path,
			HealthPath:      c.Server.HealthPath,
			MaxMessageSize:  c.Server.MaxMessageSize,
			RateLimitConfig: limit,
			CheckOrigin:     ws.Origins(c.Server.AllowedOrigins...),
		},
		Channels: c.ChannelPolicy(),
	}
}

// NewLogger builds the slog logger described by Log, writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
