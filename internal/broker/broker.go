// Package broker is the composition root of the relay core: it owns the
// connection and channel registries and turns transport events into
// registry updates and deliveries.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/luciancaetano/kephasrelay"
	"github.com/luciancaetano/kephasrelay/internal/protocol"
	"github.com/luciancaetano/kephasrelay/internal/registry"
	"github.com/luciancaetano/kephasrelay/internal/router"
)

// Config selects how channels come into existence. With AutoCreate set,
// Channels is ignored and any name becomes valid on first join.
type Config struct {
	Channels   []string
	AutoCreate bool
}

// Broker implements kephasrelay.Broker.
//
// A single mutex guards both registries so that a disconnect removes the
// connection from every channel and from the open set in one step. Deliveries
// happen under the lock; Transport.Deliver must only enqueue.
type Broker struct {
	transport kephasrelay.Transport
	logger    *slog.Logger

	mu       sync.Mutex
	conns    *registry.Connections
	channels *registry.Channels
	router   *router.Router
}

// New creates a Broker that delivers through transport.
// If logger is nil, slog.Default() is used.
func New(cfg Config, transport kephasrelay.Transport, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("component", "broker")

	var channels *registry.Channels
	if cfg.AutoCreate {
		channels = registry.NewAutoCreateChannels()
		logger.Debug("channels are created on first join")
	} else {
		channels = registry.NewChannels(cfg.Channels...)
		logger.Debug("declared channels", "channels", channels.Names())
	}

	b := &Broker{
		transport: transport,
		logger:    logger,
		conns:     registry.NewConnections(),
		channels:  channels,
	}
	b.router = router.New(b.conns, b.channels, transport.Deliver)
	return b
}

// OnOpen registers id as an open connection.
func (b *Broker) OnOpen(id kephasrelay.ConnectionID) {
	b.mu.Lock()
	added := b.conns.Register(id)
	count := b.conns.Len()
	b.mu.Unlock()

	if !added {
		b.logger.Warn("duplicate open notification", "conn_id", id)
		return
	}
	b.logger.Debug("connection opened", "conn_id", id, "connections", count)
}

// OnMessage routes payload and then acknowledges it to sender.
func (b *Broker) OnMessage(sender kephasrelay.ConnectionID, payload []byte) {
	defer b.ack(sender)

	msg, err := protocol.Decode(payload)
	if err != nil {
		b.logger.Warn("dropping malformed message", "conn_id", sender, "error", err)
		return
	}

	b.mu.Lock()
	if !b.conns.Contains(sender) {
		b.mu.Unlock()
		b.logger.Warn("message from connection that is not open", "conn_id", sender)
		return
	}
	out := b.router.Route(sender, msg, payload)
	b.mu.Unlock()

	b.logOutcome(sender, out)
}

func (b *Broker) ack(sender kephasrelay.ConnectionID) {
	if err := b.transport.Deliver(sender, kephasrelay.Ack); err != nil {
		b.logger.Debug("failed to acknowledge message", "conn_id", sender, "error", err)
	}
}

func (b *Broker) logOutcome(sender kephasrelay.ConnectionID, out router.Outcome) {
	attrs := []any{"conn_id", sender, "branch", out.Branch.String(), "channel", out.Channel}
	if out.Suggestion != "" {
		attrs = append(attrs, "did_you_mean", out.Suggestion)
	}

	switch {
	case errors.Is(out.Err, kephasrelay.ErrMissingChannelName),
		errors.Is(out.Err, kephasrelay.ErrUnknownChannelJoin):
		b.logger.Warn("join rejected", append(attrs, "reason", out.Err)...)
	case errors.Is(out.Err, kephasrelay.ErrMissingRelayDestination),
		errors.Is(out.Err, kephasrelay.ErrUnknownChannelRelay):
		b.logger.Warn("relay aborted", append(attrs, "reason", out.Err, "delivered", len(out.Delivered))...)
	case out.Branch == router.BranchJoin && out.AlreadyMember:
		b.logger.Info("already a channel member", attrs...)
	case out.Branch == router.BranchJoin:
		b.logger.Info("joined channel", append(attrs, "created", out.Created)...)
	default:
		b.logger.Debug("relayed message", append(attrs, "delivered", len(out.Delivered))...)
	}

	for _, id := range out.Failed {
		b.logger.Warn("delivery failed", "conn_id", sender, "to", id)
	}
}

// OnClose forgets id everywhere.
func (b *Broker) OnClose(id kephasrelay.ConnectionID) {
	b.mu.Lock()
	left := b.channels.RemoveConnectionEverywhere(id)
	b.conns.Unregister(id)
	count := b.conns.Len()
	b.mu.Unlock()

	b.logger.Debug("connection closed", "conn_id", id, "channels_left", left, "connections", count)
}

// OnError closes the connection; state is cleaned up by the OnClose that follows.
func (b *Broker) OnError(id kephasrelay.ConnectionID, err error) {
	b.logger.Warn("transport error, closing connection", "conn_id", id, "error", fmt.Errorf("%w: %v", kephasrelay.ErrTransport, err))
	if closeErr := b.transport.Close(id); closeErr != nil {
		b.logger.Debug("failed to close connection", "conn_id", id, "error", closeErr)
	}
}

// Stats implements kephasrelay.Broker.
func (b *Broker) Stats() kephasrelay.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return kephasrelay.Stats{
		Connections: b.conns.Len(),
		Channels:    b.channels.Len(),
		AutoCreate:  b.channels.AutoCreate(),
	}
}

// Members returns the members of channel in join order.
func (b *Broker) Members(channel string) []kephasrelay.ConnectionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels.Members(channel)
}

// ChannelExists reports whether channel is known.
func (b *Broker) ChannelExists(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels.Exists(channel)
}

// IsOpen reports whether id is registered as open.
func (b *Broker) IsOpen(id kephasrelay.ConnectionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns.Contains(id)
}

var _ kephasrelay.Broker = (*Broker)(nil)
