package kephasrelay

import "context"

// ConnectionID is the stable identity the transport assigns to a connection.
//
// It is generated when the connection is accepted and never reused for the
// lifetime of the process. The core only ever holds IDs, never the
// connection itself.
type ConnectionID string

// String implements fmt.Stringer.
func (id ConnectionID) String() string {
	return string(id)
}

// Transport is the pair of primitives the core consumes from the network
// layer. Both are fire-and-forget from the core's perspective.
type Transport interface {
	// Deliver queues payload for delivery to the connection identified by id.
	//
	// The payload is sent verbatim as a single frame. Deliver must not block
	// on network I/O; it returns an error if the connection is unknown,
	// already closed, or its outbound buffer is full.
	Deliver(id ConnectionID, payload []byte) error

	// Close closes the connection identified by id. Closing an unknown or
	// already closed connection is not an error.
	Close(id ConnectionID) error
}

// Broker receives connection lifecycle and message events from the transport.
//
// The transport guarantees that OnOpen is called before any OnMessage for the
// same connection and that OnClose is called exactly once, after the last
// OnMessage. Implementations must be safe for concurrent use by many
// connections.
type Broker interface {
	// OnOpen registers a newly accepted connection.
	OnOpen(id ConnectionID)

	// OnMessage processes one inbound payload from sender and always
	// acknowledges it with Ack, whatever the routing outcome.
	OnMessage(sender ConnectionID, payload []byte)

	// OnClose removes the connection from every channel and from the set of
	// open connections.
	OnClose(id ConnectionID)

	// OnError reacts to a transport failure on the connection by closing it.
	OnError(id ConnectionID, err error)

	// Stats returns a point-in-time view of the broker state.
	Stats() Stats
}

// Stats is a snapshot of broker state, exposed by the health endpoint.
type Stats struct {
	Connections int  `json:"connections"`
	Channels    int  `json:"channels"`
	AutoCreate  bool `json:"autoCreate"`
}

// RelayServer defines the interface for a WebSocket relay server.
//
// Example usage:
//
//	import "github.com/luciancaetano/kephasrelay/ws"
//
//	cfg := ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), ws.AutoCreate())
//	server := ws.New(cfg, nil)
//	server.Start(ctx)
type RelayServer interface {
	// Start starts the server and begins accepting connections.
	//
	// Returns an error if the server is already running or if there's a problem
	// binding to the network address.
	Start(ctx context.Context) error

	// Stop closes all client connections and shuts the HTTP server down.
	Stop(ctx context.Context) error

	// Broker returns the broker the server reports its events to.
	Broker() Broker
}
