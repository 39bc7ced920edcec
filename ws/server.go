package ws

import (
	"log/slog"
	"net/http"

	"github.com/luciancaetano/kephasrelay"
	"github.com/luciancaetano/kephasrelay/internal/broker"
	"github.com/luciancaetano/kephasrelay/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type TransportConfig = websocket.ServerConfig

// ChannelPolicy decides which channels exist. Build one with AutoCreate or Channels.
type ChannelPolicy = broker.Config

// ServerConfig holds everything New needs to build a relay.
type ServerConfig struct {
	Transport *TransportConfig
	Channels  ChannelPolicy
}

// New creates a relay server: a WebSocket transport with a broker bound to it.
// If logger is nil, slog.Default() is used.
//
// Example:
//
//	cfg := ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), ws.Channels("general", "random"))
//	server := ws.New(cfg, slog.Default())
//	server.Start(ctx)
func New(cfg *ServerConfig, logger *slog.Logger) kephasrelay.RelayServer {
	if logger == nil {
		logger = slog.Default()
	}
	var transportCfg websocket.ServerConfig
	if cfg.Transport != nil {
		transportCfg = *cfg.Transport
	}
	if transportCfg.Logger == nil {
		transportCfg.Logger = logger
	}

	server := websocket.New(&transportCfg)
	server.Bind(broker.New(cfg.Channels, server, logger))
	return server
}

// NewConfig builds a ServerConfig with default paths and message size.
//
// Parameters:
//   - addr: The server address (e.g., ":8080" or "localhost:8080")
//   - rateLimitConfig: Rate limiting configuration. Use DefaultRateLimitConfig() or NoRateLimit()
//   - checkOrigin: Function to validate WebSocket origins. Use AllOrigins() to allow all (dev only)
//   - channels: AutoCreate() or Channels(names...)
func NewConfig(addr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, channels ChannelPolicy) *ServerConfig {
	return &ServerConfig{
		Transport: &websocket.ServerConfig{
			Addr:            addr,
			RateLimitConfig: rateLimitConfig,
			CheckOrigin:     checkOrigin,
		},
		Channels: channels,
	}
}

// AutoCreate lets any channel name come into existence on first join.
func AutoCreate() ChannelPolicy {
	return broker.Config{AutoCreate: true}
}

// Channels declares a fixed set of channels; joins to any other name are rejected.
func Channels(names ...string) ChannelPolicy {
	return broker.Config{Channels: append([]string(nil), names...)}
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
