// Package ws provides WebSocket server functionality for chat clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/CNMengHan/CialloSecurityChat/internal/chat"
	"github.com/CNMengHan/CialloSecurityChat/internal/config"
	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
	"github.com/CNMengHan/CialloSecurityChat/internal/hub"
	"github.com/CNMengHan/CialloSecurityChat/internal/protocol"
	"github.com/CNMengHan/CialloSecurityChat/internal/session"
)

// NameAssigner hands out display names for new connections.
type NameAssigner interface {
	Assign() string
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	names    NameAssigner
	sessions *session.Registry
	pipeline *chat.Pipeline
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, names NameAssigner, sessions *session.Registry, pipeline *chat.Pipeline, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		hub:      h,
		names:    names,
		sessions: sessions,
		pipeline: pipeline,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request, assigns a name and starts the connection pumps.
// The welcome and history frames are queued before the connection joins the broadcast,
// so the client never misses or repeats a message.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("failed to upgrade websocket", "remote", c.RealIP(), "error", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	username := s.names.Assign()
	s.sessions.Bind(conn.ID, username)

	err = s.pipeline.Join(c.Request().Context(), func(history []domain.Message, herr error) error {
		if herr != nil {
			s.log.Warn("sending empty history", "conn_id", conn.ID, "error", herr)
		}
		if err := s.hub.SendJSONToConnection(conn, protocol.NewWelcome(username)); err != nil {
			return err
		}
		if err := s.hub.SendJSONToConnection(conn, protocol.NewHistory(history)); err != nil {
			return err
		}
		return s.hub.Register(conn)
	})
	if err != nil {
		s.log.Error("failed to join chat", "conn_id", conn.ID, "username", username, "error", err)
		s.sessions.Unbind(conn.ID)
		conn.Close()
		return nil
	}

	s.log.Info("user connected", "conn_id", conn.ID, "username", username, "remote", c.RealIP())

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		username, _ := s.sessions.Lookup(conn.ID)
		s.sessions.Unbind(conn.ID)
		s.hub.Unregister(conn)
		conn.Close()
		s.log.Info("user disconnected", "conn_id", conn.ID, "username", username)
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read error", "conn_id", conn.ID, "error", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Warn("failed to write message", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeSendMessage:
		s.handleSendMessage(conn, data)
	default:
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleSendMessage runs a chat message through the pipeline.
func (s *Server) handleSendMessage(conn *hub.Connection, data []byte) {
	var msg protocol.SendMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid send_message message")
		return
	}

	res := s.pipeline.Handle(context.Background(), conn.ID, msg.Message)
	if res.OK() || !s.cfg.NotifyRejected {
		return
	}
	s.sendError(conn, errorCode(res.Reason), res.Reason.Error())
}

// errorCode maps a pipeline failure to its wire error code.
func errorCode(reason error) string {
	switch {
	case errors.Is(reason, chat.ErrNoSession):
		return protocol.ErrorCodeNoSession
	case errors.Is(reason, chat.ErrEmptyMessage):
		return protocol.ErrorCodeEmptyMessage
	case errors.Is(reason, chat.ErrInvalidMessage):
		return protocol.ErrorCodeInvalidMessage
	case errors.Is(reason, chat.ErrStorage):
		return protocol.ErrorCodeStorageError
	case errors.Is(reason, chat.ErrDelivery):
		return protocol.ErrorCodeDeliveryError
	default:
		return protocol.ErrorCodeInvalidMessage
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, code, message string) {
	if err := s.hub.SendJSONToConnection(conn, protocol.NewError(code, message)); err != nil {
		s.log.Debug("failed to send error", "conn_id", conn.ID, "code", code, "error", err)
	}
}
