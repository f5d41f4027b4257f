// Package http provides the chat HTTP server: page, history, health, logs and the ws route.
package http

import (
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
	"github.com/CNMengHan/CialloSecurityChat/internal/protocol"
)

// WebSocketPath is the route chat clients connect to.
const WebSocketPath = "/ws"

//go:embed templates/*.html
var templateFS embed.FS

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

// LogTail receives request logs and returns everything buffered so far.
type LogTail interface {
	io.Writer
	String() string
}

// Server is the chat HTTP server.
type Server struct {
	echo        *echo.Echo
	history     HistoryReader
	connections ConnectionCounter
	sessions    SessionCounter
	logs        LogTail
	log         *slog.Logger
}

type templateRenderer struct {
	templates *template.Template
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// indexPage is the data rendered into index.html.
type indexPage struct {
	History       []protocol.ChatEntry
	MaxLength     int
	WebSocketPath string
}

// NewServer creates a new HTTP server. wsHandler serves the WebSocket route.
func NewServer(history HistoryReader, connections ConnectionCounter, sessions SessionCounter, logs LogTail, wsHandler echo.HandlerFunc, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &templateRenderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}

	// Middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Output: io.MultiWriter(os.Stdout, logs),
	}))
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		history:     history,
		connections: connections,
		sessions:    sessions,
		logs:        logs,
		log:         log,
	}

	// Register routes
	e.GET("/", s.handleIndex)
	e.GET("/history", s.handleHistory)
	e.GET("/health", s.handleHealth)
	e.GET("/logs", s.handleLogs)
	e.GET(WebSocketPath, wsHandler)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted in tests and other muxes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// handleIndex renders the chat page. A history failure renders an empty history.
func (s *Server) handleIndex(c echo.Context) error {
	history, err := s.history.History(c.Request().Context())
	if err != nil {
		s.log.Warn("rendering page without history", "error", err)
	}

	return c.Render(http.StatusOK, "index.html", indexPage{
		History:       protocol.NewChatEntries(history),
		MaxLength:     domain.MaxBodyLength,
		WebSocketPath: WebSocketPath,
	})
}

// handleHistory returns the chat history as JSON.
func (s *Server) handleHistory(c echo.Context) error {
	history, err := s.history.History(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"chat_history": protocol.NewChatEntries(history),
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": s.connections.GetConnectionCount(),
		"sessions":    s.sessions.Count(),
	})
}

// handleLogs returns the buffered process log.
func (s *Server) handleLogs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"logs": s.logs.String()})
}
