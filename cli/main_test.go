package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
	"github.com/CNMengHan/CialloSecurityChat/internal/protocol"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// echoServer greets the client and echoes every send_message back as receive_message.
func echoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		_ = conn.WriteJSON(protocol.NewWelcome("Alice"))
		_ = conn.WriteJSON(protocol.NewHistory([]domain.Message{
			{ID: 1, Username: "Bob", Body: "earlier", Timestamp: stamp},
		}))

		for id := int64(2); ; id++ {
			var msg protocol.SendMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			_ = conn.WriteJSON(protocol.NewReceiveMessage(domain.Message{
				ID: id, Username: "Alice", Body: msg.Message, Timestamp: stamp,
			}))
		}
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClientJoinPrintsHistory(t *testing.T) {
	client, err := NewClient(echoServer(t))
	require.NoError(t, err)
	defer client.Close()

	var out bytes.Buffer
	require.NoError(t, client.Join(&out))
	assert.Equal(t, "Alice", client.username)
	assert.Equal(t, "[2024-05-01 12:00:00] Bob: earlier\n", out.String())
}

func TestClientSendAndReceive(t *testing.T) {
	client, err := NewClient(echoServer(t))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Join(&bytes.Buffer{}))

	out := &syncBuffer{}
	go client.ReadMessages(out)

	require.NoError(t, client.Send("hello there"))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Alice: hello there")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPrintEventFormatsErrors(t *testing.T) {
	var out bytes.Buffer
	printEvent(&out, []byte(`{"type":"error","code":"empty_message","message":"empty message"}`))
	assert.Equal(t, "! empty_message: empty message\n", out.String())
}
