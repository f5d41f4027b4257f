package hub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, bufferSize int) *Hub {
	t.Helper()
	h := NewHub(bufferSize, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func receive(t *testing.T, conn *Connection) []byte {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		require.True(t, ok, "send queue closed")
		return data
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message on %s", conn.ID)
		return nil
	}
}

func TestNewConnectionHasUniqueID(t *testing.T) {
	h := NewHub(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := h.NewConnection(nil)
	b := h.NewConnection(nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 4, cap(a.Send))
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	h := newTestHub(t, 8)

	const n = 5
	conns := make([]*Connection, n)
	for i := range conns {
		conns[i] = h.NewConnection(nil)
		require.NoError(t, h.Register(conns[i]))
	}

	require.NoError(t, h.Broadcast([]byte("hello")))

	for _, conn := range conns {
		assert.Equal(t, "hello", string(receive(t, conn)))
	}
	assert.Equal(t, n, h.GetConnectionCount())
}

func TestBroadcastJSON(t *testing.T) {
	h := newTestHub(t, 8)
	conn := h.NewConnection(nil)
	require.NoError(t, h.Register(conn))

	require.NoError(t, h.BroadcastJSON(map[string]string{"type": "receive_message"}))
	assert.JSONEq(t, `{"type":"receive_message"}`, string(receive(t, conn)))
}

func TestSlowConnectionDoesNotBlockOthers(t *testing.T) {
	h := newTestHub(t, 1)

	slow := h.NewConnection(nil)
	fast := h.NewConnection(nil)
	require.NoError(t, h.Register(slow))
	require.NoError(t, h.Register(fast))

	require.NoError(t, h.Broadcast([]byte("one")))
	assert.Equal(t, "one", string(receive(t, fast)))

	// slow never drains, so its queue is full for the second event.
	require.NoError(t, h.Broadcast([]byte("two")))
	assert.Equal(t, "two", string(receive(t, fast)))

	assert.Equal(t, "one", string(<-slow.Send))
	_, ok := <-slow.Send
	assert.False(t, ok, "slow connection should have been dropped")

	assert.Eventually(t, func() bool { return h.GetConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestUnregisterClosesSendQueue(t *testing.T) {
	h := newTestHub(t, 4)
	conn := h.NewConnection(nil)
	require.NoError(t, h.Register(conn))

	h.Unregister(conn)
	h.Unregister(conn)

	_, ok := <-conn.Send
	assert.False(t, ok)
	assert.Equal(t, 0, h.GetConnectionCount())
	assert.ErrorIs(t, h.SendToConnection(conn, []byte("late")), ErrHubClosed)
}

func TestSendToConnectionBeforeRegister(t *testing.T) {
	h := newTestHub(t, 1)
	conn := h.NewConnection(nil)

	require.NoError(t, h.SendJSONToConnection(conn, map[string]string{"type": "welcome"}))
	assert.ErrorIs(t, h.SendToConnection(conn, []byte("overflow")), ErrBufferFull)
	assert.JSONEq(t, `{"type":"welcome"}`, string(receive(t, conn)))
}

func TestStoppedHubFailsFast(t *testing.T) {
	h := NewHub(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	conn := h.NewConnection(nil)
	require.NoError(t, h.Register(conn))

	cancel()
	<-h.Done()

	_, ok := <-conn.Send
	assert.False(t, ok, "shutdown should close registered queues")

	assert.ErrorIs(t, h.Broadcast([]byte("x")), ErrHubClosed)
	assert.ErrorIs(t, h.Register(h.NewConnection(nil)), ErrHubClosed)
	h.Unregister(conn)
}

func TestBroadcastCompletesBeforeReturning(t *testing.T) {
	h := newTestHub(t, 8)

	for i := 0; i < 50; i++ {
		require.NoError(t, h.Broadcast([]byte("before")))

		late := h.NewConnection(nil)
		require.NoError(t, h.Register(late))
		require.NoError(t, h.Broadcast([]byte("after")))

		assert.Equal(t, "after", string(receive(t, late)))
		h.Unregister(late)
	}
}
