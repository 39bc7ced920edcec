// Package kephasrelay provides a real-time WebSocket relay for chat rooms, live dashboards
// and any application where clients publish to each other through named channels.
//
// Connections join named channels and send JSON messages that the relay forwards either to
// every other open connection or to the other members of one channel. Every processed
// message is acknowledged to its sender with the single byte "1".
//
// # Architecture
//
// The relay core is transport independent. A Broker owns two registries, the set of open
// connections and the channel memberships, and reacts to four events: OnOpen, OnMessage,
// OnClose and OnError. It talks back to the network only through a Transport with two
// primitives, Deliver and Close. The ws package wires the core to a Gorilla WebSocket
// transport.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/kephasrelay/ws"
//	)
//
//	// Fixed channels; joins to any other name are rejected.
//	cfg := ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), ws.Channels("general", "random"))
//
//	// Or let channels appear on first join.
//	cfg = ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), ws.AutoCreate())
//
//	server := ws.New(cfg, slog.Default())
//	server.Start(ctx)
//
// # Wire Format
//
// Each text frame carries one JSON object. The relay reads three fields and leaves the rest
// alone:
//
//	{"action": "joinChannel", "channel": "general"}          // join a channel
//	{"toChannel": "*", "text": "hi everyone"}                // relay to all other connections
//	{"toChannel": "general", "text": "hi general"}           // relay to the other members of general
//
// Relayed messages are forwarded byte for byte. Any action other than "joinChannel" is a relay.
//
// # Relay Semantics
//
// Candidates are visited in connection order. The sender is always skipped. A relay without
// toChannel, or to a channel that does not exist, stops at the first candidate other than the
// sender, so nobody receives it; the sender is still acknowledged. Malformed JSON is
// acknowledged and otherwise ignored.
//
// # Security Features
//
//   - Rate limiting per client (token bucket, close code 1008 when exceeded)
//   - Maximum message size (default 1MB, hard cap 10MB)
//   - Read timeout: 60s, refreshed by pong and by every message
//   - Write timeout: 10s
//   - Origin validation via CheckOriginFn (ws.Origins builds an allowlist)
//
// # Important
//
//   - Joins are not authenticated; any connection may join any existing channel
//   - Channel membership lives in memory and is lost on restart
//   - A client whose 256-message send buffer is full misses deliveries instead of
//     slowing the relay down
package kephasrelay
