// Package router interprets inbound messages and decides where they go.
package router

import (
	"github.com/luciancaetano/kephasrelay"
	"github.com/luciancaetano/kephasrelay/internal/protocol"
	"github.com/luciancaetano/kephasrelay/internal/registry"
)

// DeliverFunc hands payload to the transport for delivery to id.
type DeliverFunc func(id kephasrelay.ConnectionID, payload []byte) error

// Branch identifies which part of the protocol handled a message.
type Branch int

const (
	BranchRelay Branch = iota
	BranchJoin
)

func (b Branch) String() string {
	if b == BranchJoin {
		return "join"
	}
	return "relay"
}

// Outcome describes what Route did with one message.
type Outcome struct {
	Branch Branch
	// Channel is the join target or the relay destination.
	Channel string

	// Join results.
	Created       bool
	Joined        bool
	AlreadyMember bool

	// Relay results, in delivery order.
	Delivered []kephasrelay.ConnectionID
	Failed    []kephasrelay.ConnectionID

	// Err is one of the routing errors in package kephasrelay, or nil.
	Err error
	// Suggestion is a known channel close to an unknown Channel, if any.
	Suggestion string
}

// Router runs the join and relay branches against the registries it is
// given. It holds no state of its own and does no locking: the caller must
// serialize access to the registries.
type Router struct {
	conns    *registry.Connections
	channels *registry.Channels
	deliver  DeliverFunc
}

// New creates a Router over the given registries.
func New(conns *registry.Connections, channels *registry.Channels, deliver DeliverFunc) *Router {
	return &Router{
		conns:    conns,
		channels: channels,
		deliver:  deliver,
	}
}

// Route processes msg from sender. payload is the raw message, relayed
// unmodified.
func (r *Router) Route(sender kephasrelay.ConnectionID, msg protocol.Message, payload []byte) Outcome {
	if msg.IsJoin() {
		return r.join(sender, msg.Channel)
	}
	return r.relay(sender, msg, payload)
}

func (r *Router) join(sender kephasrelay.ConnectionID, channel string) Outcome {
	out := Outcome{Branch: BranchJoin, Channel: channel}

	if channel == "" {
		out.Err = kephasrelay.ErrMissingChannelName
		return out
	}

	created, ok := r.channels.EnsureChannel(channel)
	if !ok {
		out.Err = kephasrelay.ErrUnknownChannelJoin
		out.Suggestion, _ = r.channels.Closest(channel)
		return out
	}
	out.Created = created
	out.Joined, out.AlreadyMember = r.channels.Join(channel, sender)
	return out
}

// relay walks the open connections in registration order. A missing or
// unknown destination stops the walk at the first candidate other than the
// sender, so candidates visited earlier keep what they already received.
func (r *Router) relay(sender kephasrelay.ConnectionID, msg protocol.Message, payload []byte) Outcome {
	toChannel := msg.ToChannel
	out := Outcome{Branch: BranchRelay, Channel: toChannel}

	for _, client := range r.conns.All() {
		if client == sender {
			continue
		}

		if toChannel == "" {
			out.Err = kephasrelay.ErrMissingRelayDestination
			return out
		}

		if !msg.IsBroadcast() {
			if !r.channels.Exists(toChannel) {
				out.Err = kephasrelay.ErrUnknownChannelRelay
				out.Suggestion, _ = r.channels.Closest(toChannel)
				return out
			}
			if !r.channels.IsMember(toChannel, client) {
				continue
			}
		}

		if err := r.deliver(client, payload); err != nil {
			out.Failed = append(out.Failed, client)
			continue
		}
		out.Delivered = append(out.Delivered, client)
	}

	return out
}
