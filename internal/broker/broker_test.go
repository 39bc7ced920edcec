package broker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/kephasrelay"
)

type fakeTransport struct {
	mu     sync.Mutex
	inbox  map[kephasrelay.ConnectionID][]string
	closed []kephasrelay.ConnectionID
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: map[kephasrelay.ConnectionID][]string{}}
}

func (f *fakeTransport) Deliver(id kephasrelay.ConnectionID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox[id] = append(f.inbox[id], string(payload))
	return nil
}

func (f *fakeTransport) Close(id kephasrelay.ConnectionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeTransport) received(id kephasrelay.ConnectionID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inbox[id]...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBroker(cfg Config, open ...kephasrelay.ConnectionID) (*Broker, *fakeTransport) {
	transport := newFakeTransport()
	b := New(cfg, transport, quietLogger())
	for _, id := range open {
		b.OnOpen(id)
	}
	return b, transport
}

func TestIdempotentJoin(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(Config{Channels: []string{"team"}}, "A")

	for i := 0; i < 5; i++ {
		b.OnMessage("A", []byte(`{"action":"joinChannel","channel":"team"}`))
	}

	assert.Equal(t, []kephasrelay.ConnectionID{"A"}, b.Members("team"))
}

func TestWildcardBroadcast(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{}, "A", "B", "C")
	msg := `{"toChannel":"*","text":"hello"}`

	b.OnMessage("A", []byte(msg))

	assert.Equal(t, []string{"1"}, tr.received("A"))
	assert.Equal(t, []string{msg}, tr.received("B"))
	assert.Equal(t, []string{msg}, tr.received("C"))
}

func TestChannelScopedDelivery(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{Channels: []string{"team"}}, "A", "B", "C", "D")
	b.OnMessage("B", []byte(`{"action":"joinChannel","channel":"team"}`))
	b.OnMessage("C", []byte(`{"action":"joinChannel","channel":"team"}`))

	msg := `{"toChannel":"team","text":"standup"}`
	b.OnMessage("A", []byte(msg))

	assert.Equal(t, []string{"1"}, tr.received("A"))
	assert.Equal(t, []string{"1", msg}, tr.received("B"))
	assert.Equal(t, []string{"1", msg}, tr.received("C"))
	assert.Empty(t, tr.received("D"))

	b.OnMessage("B", []byte(msg))
	assert.Equal(t, []string{"1", msg, "1"}, tr.received("B"), "sender member is excluded")
	assert.Equal(t, []string{"1", msg, msg}, tr.received("C"))
}

func TestMissingDestinationAbortsBroadcast(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{}, "A", "B", "C")

	b.OnMessage("A", []byte(`{"text":"to nobody"}`))

	assert.Equal(t, []string{"1"}, tr.received("A"))
	assert.Empty(t, tr.received("B"))
	assert.Empty(t, tr.received("C"))
}

func TestUnknownChannelAbortsBroadcast(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{Channels: []string{"team"}}, "A", "B", "C")

	b.OnMessage("A", []byte(`{"toChannel":"ghost"}`))

	assert.Equal(t, []string{"1"}, tr.received("A"))
	assert.Empty(t, tr.received("B"))
	assert.Empty(t, tr.received("C"))
	assert.False(t, b.ChannelExists("ghost"))
}

func TestRejectedJoinsStillAcknowledge(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{Channels: []string{"team"}}, "A")

	b.OnMessage("A", []byte(`{"action":"joinChannel"}`))
	b.OnMessage("A", []byte(`{"action":"joinChannel","channel":"ghost"}`))

	assert.Equal(t, []string{"1", "1"}, tr.received("A"))
	assert.False(t, b.ChannelExists("ghost"))
	assert.Empty(t, b.Members("team"))
}

func TestMalformedPayloadIsAcknowledged(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{AutoCreate: true}, "A", "B")

	for _, payload := range []string{`not json`, `{"toChannel":`, `[]`, ``} {
		b.OnMessage("A", []byte(payload))
	}

	assert.Equal(t, []string{"1", "1", "1", "1"}, tr.received("A"))
	assert.Empty(t, tr.received("B"))
	assert.Equal(t, 2, b.Stats().Connections)
}

func TestDisconnectCleanup(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(Config{Channels: []string{"x", "y"}}, "A", "B")
	b.OnMessage("A", []byte(`{"action":"joinChannel","channel":"x"}`))
	b.OnMessage("B", []byte(`{"action":"joinChannel","channel":"x"}`))
	b.OnMessage("B", []byte(`{"action":"joinChannel","channel":"y"}`))

	b.OnClose("B")

	assert.Equal(t, []kephasrelay.ConnectionID{"A"}, b.Members("x"))
	assert.Empty(t, b.Members("y"))
	assert.False(t, b.IsOpen("B"))
	assert.True(t, b.IsOpen("A"))
	assert.True(t, b.ChannelExists("y"), "channels are never deleted")
}

func TestClosedConnectionReceivesNothing(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{}, "A", "B")
	b.OnClose("B")

	b.OnMessage("A", []byte(`{"toChannel":"*"}`))

	assert.Empty(t, tr.received("B"))
}

func TestMessageFromUnknownSenderDoesNotJoin(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{AutoCreate: true}, "A")

	b.OnMessage("ghost", []byte(`{"action":"joinChannel","channel":"x"}`))

	assert.False(t, b.ChannelExists("x"))
	assert.Equal(t, []string{"1"}, tr.received("ghost"))
}

func TestAutoCreateOnFirstJoin(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(Config{AutoCreate: true}, "A")
	require.False(t, b.ChannelExists("new"))

	b.OnMessage("A", []byte(`{"action":"joinChannel","channel":"new"}`))

	assert.True(t, b.ChannelExists("new"))
	assert.Equal(t, []kephasrelay.ConnectionID{"A"}, b.Members("new"))
}

func TestAutoCreateIgnoresDeclaredChannels(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(Config{AutoCreate: true, Channels: []string{"x"}})

	assert.False(t, b.ChannelExists("x"))
	assert.True(t, b.Stats().AutoCreate)
}

func TestNewLogsChannelPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		want    string
		notWant string
	}{
		{
			name:    "declared",
			cfg:     Config{Channels: []string{"x", "y", "x"}},
			want:    `"channels":["x","y"]`,
			notWant: "created on first join",
		},
		{
			name:    "auto-create",
			cfg:     Config{AutoCreate: true, Channels: []string{"x"}},
			want:    "created on first join",
			notWant: "declared channels",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			New(tt.cfg, newFakeTransport(), logger)

			assert.Contains(t, buf.String(), tt.want)
			assert.NotContains(t, buf.String(), tt.notWant)
		})
	}
}

func TestDuplicateOpenDoesNotCorruptState(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{}, "A", "B")
	b.OnOpen("B")

	b.OnMessage("A", []byte(`{"toChannel":"*"}`))

	assert.Len(t, tr.received("B"), 1)
	assert.Equal(t, 2, b.Stats().Connections)
}

func TestOnErrorClosesConnection(t *testing.T) {
	t.Parallel()

	b, tr := newTestBroker(Config{Channels: []string{"x"}}, "A")
	b.OnMessage("A", []byte(`{"action":"joinChannel","channel":"x"}`))

	b.OnError("A", errors.New("connection reset by peer"))

	assert.Equal(t, []kephasrelay.ConnectionID{"A"}, tr.closed)
	assert.True(t, b.IsOpen("A"), "OnError leaves cleanup to OnClose")
	assert.Equal(t, []kephasrelay.ConnectionID{"A"}, b.Members("x"))
}

func TestStats(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(Config{Channels: []string{"x", "y", "x"}}, "A", "B", "C")
	b.OnClose("C")

	assert.Equal(t, kephasrelay.Stats{Connections: 2, Channels: 2}, b.Stats())
}

func TestConcurrentLifecycle(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(Config{AutoCreate: true})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := kephasrelay.ConnectionID(fmt.Sprintf("conn-%d", i))
			b.OnOpen(id)
			b.OnMessage(id, []byte(fmt.Sprintf(`{"action":"joinChannel","channel":"room-%d"}`, i%5)))
			b.OnMessage(id, []byte(`{"toChannel":"*"}`))
			b.OnMessage(id, []byte(fmt.Sprintf(`{"toChannel":"room-%d"}`, i%5)))
			b.OnClose(id)
		}(i)
	}
	wg.Wait()

	stats := b.Stats()
	assert.Zero(t, stats.Connections)
	assert.Equal(t, 5, stats.Channels)
	for i := 0; i < 5; i++ {
		assert.Empty(t, b.Members(fmt.Sprintf("room-%d", i)))
	}
}
