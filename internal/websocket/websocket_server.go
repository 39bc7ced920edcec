package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephasrelay"
	"github.com/luciancaetano/kephasrelay/internal/protocol"
)

const (
	// DefaultPath is the HTTP path upgraded to WebSocket.
	DefaultPath = "/ws"
	// DefaultHealthPath serves broker stats as JSON.
	DefaultHealthPath = "/healthz"
	// DefaultMaxMessageSize bounds inbound frames.
	DefaultMaxMessageSize int64 = 1 << 20

	readTimeout = 60 * time.Second
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
type CheckOriginFn = func(r *http.Request) bool

// ServerConfig holds the transport settings.
type ServerConfig struct {
	Addr string
	// Path and HealthPath default to DefaultPath and DefaultHealthPath.
	Path       string
	HealthPath string
	// MaxMessageSize defaults to DefaultMaxMessageSize and is capped at
	// protocol.MaxPayloadSize.
	MaxMessageSize  int64
	RateLimitConfig *RateLimitConfig
	CheckOrigin     CheckOriginFn
	Logger          *slog.Logger
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server is the WebSocket transport. It implements kephasrelay.Transport and
// reports connection events to the bound broker.
type Server struct {
	addr       string
	path       string
	healthPath string
	maxMsgSize int64
	server     *http.Server
	clients    sync.Map // map[kephasrelay.ConnectionID]*Client
	broker     kephasrelay.Broker
	logger     *slog.Logger

	// Rate limiting configuration
	rateLimitConfig *RateLimitConfig

	mu       sync.RWMutex
	running  bool
	upgrader websocket.Upgrader
}

// New creates a new transport from cfg. A broker must be bound with Bind
// before the server accepts connections. cfg is not modified.
//
// The server uses the Gorilla WebSocket library with read/write buffer sizes of 1024 bytes.
// Rate limiting is applied per-client using a token bucket algorithm.
func New(config *ServerConfig) *Server {
	cfg := *config
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultHealthPath
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.MaxMessageSize > protocol.MaxPayloadSize {
		cfg.MaxMessageSize = protocol.MaxPayloadSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:            cfg.Addr,
		path:            cfg.Path,
		healthPath:      cfg.HealthPath,
		maxMsgSize:      cfg.MaxMessageSize,
		rateLimitConfig: cfg.RateLimitConfig,
		logger:          logger.With("component", "transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Bind sets the broker that receives connection events.
func (s *Server) Bind(b kephasrelay.Broker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broker = b
}

// Broker returns the bound broker, or nil.
func (s *Server) Broker() kephasrelay.Broker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broker
}

// Handler returns the HTTP handler serving the WebSocket and health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	mux.HandleFunc(s.healthPath, s.handleHealth)
	return mux
}

// Start starts the WebSocket server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return kephasrelay.ErrServerAlreadyRunning
	}
	if s.broker == nil {
		s.mu.Unlock()
		return kephasrelay.ErrNoBroker
	}
	s.running = true
	s.mu.Unlock()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Check for immediate startup errors with a small timeout
	select {
	case err := <-errChan:
		// Reset running state without calling Stop to avoid deadlock
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("relay listening", "addr", s.addr, "path", s.path)
		return nil
	}
}

// Stop stops the WebSocket server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	// Closing a client ends its read loop, which reports OnClose.
	s.clients.Range(func(key, value interface{}) bool {
		if client, ok := value.(*Client); ok {
			client.CloseWithCode(ctx, websocket.CloseGoingAway, "server shutting down")
		}
		return true
	})

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleWebSocket handles incoming WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	broker := s.Broker()
	if broker == nil {
		http.Error(w, kephasrelay.ErrNoBroker.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(s.maxMsgSize)

	client := NewClient(conn, r.RemoteAddr, s.rateLimitConfig)
	s.clients.Store(client.ID(), client)

	go s.handleClient(client, broker)
}

// handleClient runs the read loop of a connected client. Messages are handed
// to the broker synchronously so that one sender's messages are processed in
// arrival order.
func (s *Server) handleClient(client *Client, broker kephasrelay.Broker) {
	defer func() {
		s.clients.Delete(client.ID())
		broker.OnClose(client.ID())
		client.Close(context.Background())
	}()

	client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	broker.OnOpen(client.ID())

	for {
		select {
		case <-client.Context().Done():
			return
		default:
			_, data, err := client.conn.ReadMessage()
			if err != nil {
				if s.isUnexpectedReadError(client, err) {
					broker.OnError(client.ID(), err)
				}
				return
			}

			client.conn.SetReadDeadline(time.Now().Add(readTimeout))

			if !client.CheckRateLimit(context.Background()) {
				s.logger.Warn("rate limit exceeded", "conn_id", client.ID(), "remote_addr", client.RemoteAddr())
				client.CloseWithCode(context.Background(), websocket.ClosePolicyViolation, "Rate limit exceeded")
				return
			}

			broker.OnMessage(client.ID(), data)
		}
	}
}

// isUnexpectedReadError reports whether err is a transport failure rather
// than an orderly close.
func (s *Server) isUnexpectedReadError(client *Client, err error) bool {
	if !client.IsAlive() {
		return false
	}
	if errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		s.logger.Debug("client disconnected", "conn_id", client.ID(), "remote_addr", client.RemoteAddr())
		return false
	}
	return true
}

type healthResponse struct {
	Status string `json:"status"`
	kephasrelay.Stats
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{Status: "ok"}
	if broker := s.Broker(); broker != nil {
		resp.Stats = broker.Stats()
	} else {
		resp.Status = "unbound"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("failed to write health response", "error", err)
	}
}

// GetClient returns a client by ID
func (s *Server) GetClient(id kephasrelay.ConnectionID) (*Client, bool) {
	if client, ok := s.clients.Load(id); ok {
		return client.(*Client), true
	}
	return nil, false
}

// Deliver implements kephasrelay.Transport. It never blocks: a full send
// buffer drops the payload and returns kephasrelay.ErrSendBufferFull.
func (s *Server) Deliver(id kephasrelay.ConnectionID, payload []byte) error {
	client, ok := s.GetClient(id)
	if !ok {
		return fmt.Errorf("%w: %s", kephasrelay.ErrClientNotFound, id)
	}
	return client.enqueue(payload)
}

// Close implements kephasrelay.Transport.
func (s *Server) Close(id kephasrelay.ConnectionID) error {
	client, ok := s.GetClient(id)
	if !ok {
		return nil
	}
	return client.Close(context.Background())
}

var _ kephasrelay.Transport = (*Server)(nil)
