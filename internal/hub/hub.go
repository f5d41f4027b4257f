// Package hub provides connection management and fan-out for WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrBufferFull is returned when a connection's send queue is full.
	ErrBufferFull = errors.New("send buffer full")

	// ErrHubClosed is returned once the hub's Run loop has stopped.
	ErrHubClosed = errors.New("hub closed")
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	// closed is guarded by the hub mutex and set when Send is closed.
	closed bool
	mu     sync.Mutex
}

// broadcastEvent is one fan-out request. delivered is closed once every registered
// connection has been offered data.
type broadcastEvent struct {
	data      []byte
	delivered chan struct{}
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Channels for registration/unregistration
	register   chan *Connection
	unregister chan *Connection

	// Broadcast channel for sending to every connection
	broadcast chan broadcastEvent

	bufferSize int
	log        *slog.Logger
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new Hub. bufferSize bounds each connection's send queue.
func NewHub(bufferSize int, log *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan broadcastEvent),
		bufferSize:  bufferSize,
		log:         log,
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, after closing every
// connection's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			count := len(h.connections)
			h.mu.Unlock()
			h.log.Info("connection registered", "conn_id", conn.ID, "connections", count)

		case conn := <-h.unregister:
			if h.remove(conn) {
				h.log.Info("connection unregistered", "conn_id", conn.ID)
			}

		case event := <-h.broadcast:
			h.fanOut(event.data)
			close(event.delivered)
		}
	}
}

// fanOut enqueues data for every registered connection. A full queue only affects its
// own connection, which is dropped; the remaining recipients still get the event.
func (h *Hub) fanOut(data []byte) {
	h.mu.RLock()
	var failed []*Connection
	for _, conn := range h.connections {
		select {
		case conn.Send <- data:
		default:
			failed = append(failed, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range failed {
		h.log.Warn("dropping slow connection", "conn_id", conn.ID, "error", ErrBufferFull)
		h.remove(conn)
	}
}

// remove deletes a connection and closes its send queue. It reports whether the
// connection was still registered.
func (h *Hub) remove(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return false
	}
	delete(h.connections, conn.ID)
	conn.closed = true
	close(conn.Send)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		conn.closed = true
		close(conn.Send)
		delete(h.connections, id)
	}
	h.log.Info("hub stopped")
}

// NewConnection creates a new connection. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, h.bufferSize),
	}
}

// Register registers a connection with the hub. Once Register returns, the connection
// receives every later broadcast.
func (h *Hub) Register(conn *Connection) error {
	select {
	case h.register <- conn:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Unregister unregisters a connection from the hub. Unknown connections are ignored.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast sends a message to every registered connection. It returns once the message
// is queued for each of them, so a connection registered after Broadcast returns never
// receives it.
func (h *Hub) Broadcast(data []byte) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	event := broadcastEvent{data: data, delivered: make(chan struct{})}
	select {
	case h.broadcast <- event:
	case <-h.done:
		return ErrHubClosed
	}

	<-event.delivered
	return nil
}

// BroadcastJSON sends a JSON message to every registered connection.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Broadcast(data)
}

// SendToConnection sends a message to a specific connection. The connection does not
// need to be registered.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn.closed {
		return ErrHubClosed
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Done is closed when the Run loop has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
