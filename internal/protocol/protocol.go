package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/luciancaetano/kephasrelay"
)

// MaxPayloadSize is the largest inbound payload Decode accepts.
const MaxPayloadSize = 10 * 1024 * 1024 // 10MB

// Message holds the routing fields of an inbound payload. Any other keys
// in the object are left untouched in the raw payload and relayed as-is.
type Message struct {
	Action    string `json:"action"`
	Channel   string `json:"channel"`
	ToChannel string `json:"toChannel"`
}

// IsJoin reports whether the message selects the join branch.
func (m Message) IsJoin() bool {
	return m.Action == kephasrelay.ActionJoinChannel
}

// IsBroadcast reports whether the message targets every open connection.
func (m Message) IsBroadcast() bool {
	return m.ToChannel == kephasrelay.Wildcard
}

// routingFields mirrors Message with loose field types so a non-string value
// under a routing key reads as absent instead of failing the whole decode.
type routingFields struct {
	Action    json.RawMessage `json:"action"`
	Channel   json.RawMessage `json:"channel"`
	ToChannel json.RawMessage `json:"toChannel"`
}

// Decode extracts the routing fields from a raw JSON payload.
// The payload must be a JSON object; anything else wraps kephasrelay.ErrParse.
func Decode(data []byte) (Message, error) {
	if len(data) > MaxPayloadSize {
		return Message{}, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", kephasrelay.ErrParse, len(data), MaxPayloadSize)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, fmt.Errorf("%w: payload is not a JSON object", kephasrelay.ErrParse)
	}

	var fields routingFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", kephasrelay.ErrParse, err)
	}

	return Message{
		Action:    stringField(fields.Action),
		Channel:   stringField(fields.Channel),
		ToChannel: stringField(fields.ToChannel),
	}, nil
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
