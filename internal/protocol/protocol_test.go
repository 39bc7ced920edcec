package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/luciancaetano/kephasrelay"
)

// TestDecode tests routing field extraction with various inputs
func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   string
		want      Message
		wantError bool
	}{
		{
			name:    "join request",
			payload: `{"action":"joinChannel","channel":"team"}`,
			want:    Message{Action: "joinChannel", Channel: "team"},
		},
		{
			name:    "relay with extra fields",
			payload: `{"toChannel":"team","text":"hi","n":3}`,
			want:    Message{ToChannel: "team"},
		},
		{
			name:    "wildcard relay",
			payload: `{"toChannel":"*"}`,
			want:    Message{ToChannel: "*"},
		},
		{
			name:    "empty object",
			payload: `{}`,
			want:    Message{},
		},
		{
			name:    "non-string routing fields read as absent",
			payload: `{"action":5,"channel":null,"toChannel":["x"]}`,
			want:    Message{},
		},
		{
			name:    "leading whitespace",
			payload: "  \n{\"toChannel\":\"a\"}",
			want:    Message{ToChannel: "a"},
		},
		{
			name:      "not json",
			payload:   `hello`,
			wantError: true,
		},
		{
			name:      "truncated object",
			payload:   `{"toChannel":`,
			wantError: true,
		},
		{
			name:      "json array",
			payload:   `[1,2,3]`,
			wantError: true,
		},
		{
			name:      "json null",
			payload:   `null`,
			wantError: true,
		},
		{
			name:      "empty payload",
			payload:   ``,
			wantError: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode([]byte(tt.payload))

			if (err != nil) != tt.wantError {
				t.Fatalf("Decode() error = %v, wantError %v", err, tt.wantError)
			}

			if tt.wantError {
				if !errors.Is(err, kephasrelay.ErrParse) {
					t.Errorf("Decode() error = %v, want wrapping ErrParse", err)
				}
				return
			}

			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestDecodeOversizedPayload tests the payload size guard
func TestDecodeOversizedPayload(t *testing.T) {
	t.Parallel()

	payload := append([]byte(`{"toChannel":"`), bytes.Repeat([]byte("a"), MaxPayloadSize)...)
	payload = append(payload, []byte(`"}`)...)

	if _, err := Decode(payload); !errors.Is(err, kephasrelay.ErrParse) {
		t.Errorf("Decode() error = %v, want ErrParse", err)
	}
}

// TestMessagePredicates tests the branch helpers
func TestMessagePredicates(t *testing.T) {
	t.Parallel()

	if !(Message{Action: kephasrelay.ActionJoinChannel}).IsJoin() {
		t.Error("joinChannel action should select the join branch")
	}

	if (Message{Action: "JoinChannel"}).IsJoin() {
		t.Error("action match should be case sensitive")
	}

	if !(Message{ToChannel: "*"}).IsBroadcast() {
		t.Error("wildcard should be a broadcast")
	}

	if (Message{ToChannel: "team"}).IsBroadcast() {
		t.Error("named channel should not be a broadcast")
	}
}

// BenchmarkDecode benchmarks routing field extraction
func BenchmarkDecode(b *testing.B) {
	payload := []byte(`{"toChannel":"team","text":"hello world","meta":{"a":1}}`)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(payload)
	}
}
