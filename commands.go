package kephasrelay

import "errors"

// Wire constants.
const (
	// ActionJoinChannel selects the join branch of an inbound message.
	ActionJoinChannel = "joinChannel"

	// Wildcard as toChannel relays a message to every open connection.
	Wildcard = "*"

	// AutoCreateSentinel, as the only configured channel name, enables
	// auto-create mode.
	AutoCreateSentinel = "*"
)

// Ack is the acknowledgment sent back to the sender of every processed message.
var Ack = []byte("1")

// Routing errors. None of them is fatal: the broker logs them and still
// acknowledges the message.
var (
	// ErrParse means the inbound payload is not a JSON object.
	ErrParse = errors.New("parse error")

	// ErrMissingChannelName means a join request carried no channel.
	ErrMissingChannelName = errors.New("missing channel name")

	// ErrUnknownChannelJoin means a join targeted an undeclared channel while
	// auto-create is disabled.
	ErrUnknownChannelJoin = errors.New("unknown channel on join")

	// ErrMissingRelayDestination means a relay message had no toChannel; the
	// remainder of that relay is aborted.
	ErrMissingRelayDestination = errors.New("missing relay destination")

	// ErrUnknownChannelRelay means a relay targeted a channel that does not
	// exist; the remainder of that relay is aborted.
	ErrUnknownChannelRelay = errors.New("unknown channel on relay")

	// ErrTransport wraps failures reported by the transport.
	ErrTransport = errors.New("transport error")
)

// Transport errors.
var (
	ErrClientNotFound       = errors.New("client not found")
	ErrConnectionClosed     = errors.New("client connection is closed")
	ErrSendBufferFull       = errors.New("client send buffer full")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrNoBroker             = errors.New("no broker bound to server")
)
