// Package rpc exposes a read-only admin surface over JSON-RPC.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
	"github.com/CNMengHan/CialloSecurityChat/internal/protocol"
)

// HistoryReader returns the chat history oldest first.
type HistoryReader interface {
	History(ctx context.Context) ([]domain.Message, error)
}

// ConnectionCounter reports the number of live WebSocket connections.
type ConnectionCounter interface {
	GetConnectionCount() int
}

// SessionCounter reports the number of bound sessions.
type SessionCounter interface {
	Count() int
}

// Server exposes chat RPC endpoints.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	log       *slog.Logger
	done      chan struct{}
}

// NewServer creates a new RPC server with the Chat service registered.
func NewServer(history HistoryReader, connections ConnectionCounter, sessions SessionCounter, log *slog.Logger) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{history: history, connections: connections, sessions: sessions}
	if err := rpcServer.RegisterName("Chat", handler); err != nil {
		return nil, err
	}

	return &Server{
		rpcServer: rpcServer,
		log:       log,
		done:      make(chan struct{}),
	}, nil
}

// Listen binds the server to addr. It must be called before Serve.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts RPC connections until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("rpc server is not listening")
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.log.Warn("rpc accept error", "error", err)
			continue
		}

		go s.ServeConn(conn)
	}
}

// ServeConn serves a single JSON-RPC connection until the peer hangs up.
func (s *Server) ServeConn(conn net.Conn) {
	s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements chat RPC methods.
type Handler struct {
	history     HistoryReader
	connections ConnectionCounter
	sessions    SessionCounter
}

// HistoryRequest is the argument of Chat.History.
type HistoryRequest struct {
	// AfterID skips messages with an id less than or equal to it.
	AfterID int64 `json:"after_id"`
	// Limit caps the number of returned messages, newest last. 0 means no cap.
	Limit int `json:"limit"`
}

// HistoryResponse is the reply of Chat.History.
type HistoryResponse struct {
	Messages []protocol.ChatEntry `json:"messages"`
}

// StatsRequest is the argument of Chat.Stats.
type StatsRequest struct{}

// StatsResponse is the reply of Chat.Stats.
type StatsResponse struct {
	Connections int   `json:"connections"`
	Sessions    int   `json:"sessions"`
	Messages    int   `json:"messages"`
	LastID      int64 `json:"last_id"`
}

// History returns stored messages in id order.
func (h *Handler) History(req *HistoryRequest, resp *HistoryResponse) error {
	if req == nil {
		req = &HistoryRequest{}
	}
	if req.Limit < 0 {
		return errors.New("limit must not be negative")
	}

	messages, err := h.history.History(context.Background())
	if err != nil {
		return err
	}

	start := 0
	for start < len(messages) && messages[start].ID <= req.AfterID {
		start++
	}
	messages = messages[start:]
	if req.Limit > 0 && len(messages) > req.Limit {
		messages = messages[len(messages)-req.Limit:]
	}

	resp.Messages = protocol.NewChatEntries(messages)
	return nil
}

// Stats reports live counters and the size of the message log.
func (h *Handler) Stats(_ *StatsRequest, resp *StatsResponse) error {
	messages, err := h.history.History(context.Background())
	if err != nil {
		return err
	}

	resp.Connections = h.connections.GetConnectionCount()
	resp.Sessions = h.sessions.Count()
	resp.Messages = len(messages)
	if len(messages) > 0 {
		resp.LastID = messages[len(messages)-1].ID
	}
	return nil
}
