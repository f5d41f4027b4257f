// Package chat implements the inbound message pipeline: validate, persist, broadcast.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
	"github.com/CNMengHan/CialloSecurityChat/internal/protocol"
	"github.com/CNMengHan/CialloSecurityChat/internal/store"
)

var (
	// ErrNoSession is returned for a connection with no bound username.
	ErrNoSession = errors.New("no session")

	// ErrEmptyMessage is returned when the message is blank after trimming.
	ErrEmptyMessage = errors.New("empty message")

	// ErrInvalidMessage is returned when the message breaks the username or body limits.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrStorage wraps a message store failure.
	ErrStorage = errors.New("storage error")

	// ErrDelivery wraps a broadcast failure after the message was stored.
	ErrDelivery = errors.New("delivery error")
)

// Status is the state a message reached in the pipeline.
type Status string

const (
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
	StatusPersisted Status = "persisted"
	StatusBroadcast Status = "broadcast"
)

// Result is the outcome of handling one inbound message.
type Result struct {
	Status Status
	// Reason is nil only for StatusBroadcast.
	Reason error
	// Message is the stored record for StatusPersisted and StatusBroadcast.
	Message domain.Message
}

// OK reports whether the message was stored and handed to the broadcaster.
func (r Result) OK() bool {
	return r.Status == StatusBroadcast
}

// Sessions resolves the username bound to a connection.
type Sessions interface {
	Lookup(connID string) (string, bool)
}

// Publisher fans an event out to every connected client.
type Publisher interface {
	BroadcastJSON(v interface{}) error
}

// Pipeline ties the session registry, message store and broadcaster together.
type Pipeline struct {
	sessions  Sessions
	store     store.Store
	publisher Publisher
	log       *slog.Logger

	// mu orders append+publish and history+join, so live delivery follows id order
	// and a joining client sees each message exactly once.
	mu sync.Mutex
}

// NewPipeline creates a pipeline.
func NewPipeline(sessions Sessions, st store.Store, publisher Publisher, log *slog.Logger) *Pipeline {
	return &Pipeline{
		sessions:  sessions,
		store:     st,
		publisher: publisher,
		log:       log,
	}
}

// Truncate cuts text to at most max characters.
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}

// Handle runs one inbound message from connID through the pipeline.
func (p *Pipeline) Handle(ctx context.Context, connID, raw string) Result {
	username, ok := p.sessions.Lookup(connID)
	if !ok {
		p.log.Warn("message rejected", "conn_id", connID, "reason", ErrNoSession)
		return Result{Status: StatusRejected, Reason: ErrNoSession}
	}

	body := Truncate(raw, domain.MaxBodyLength)
	if strings.TrimSpace(body) == "" {
		p.log.Debug("message rejected", "conn_id", connID, "username", username, "reason", ErrEmptyMessage)
		return Result{Status: StatusRejected, Reason: ErrEmptyMessage}
	}

	candidate := domain.Message{Username: username, Body: body}
	if err := candidate.Validate(); err != nil {
		p.log.Warn("message rejected", "conn_id", connID, "username", username, "reason", err)
		return Result{Status: StatusRejected, Reason: fmt.Errorf("%w: %w", ErrInvalidMessage, err)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg, err := p.store.Append(ctx, username, body)
	if err != nil {
		p.log.Error("failed to persist message", "conn_id", connID, "username", username, "error", err)
		return Result{Status: StatusFailed, Reason: fmt.Errorf("%w: %w", ErrStorage, err)}
	}
	p.log.Info("message sent", "id", msg.ID, "username", msg.Username, "message", msg.Body)

	if err := p.publisher.BroadcastJSON(protocol.NewReceiveMessage(msg)); err != nil {
		p.log.Error("failed to broadcast message", "id", msg.ID, "error", err)
		return Result{Status: StatusPersisted, Reason: fmt.Errorf("%w: %w", ErrDelivery, err), Message: msg}
	}

	return Result{Status: StatusBroadcast, Message: msg}
}

// History returns the full chat history.
func (p *Pipeline) History(ctx context.Context) ([]domain.Message, error) {
	messages, err := p.store.History(ctx)
	if err != nil {
		p.log.Error("failed to load history", "error", err)
		return []domain.Message{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return messages, nil
}

// Join reads the history and calls join while no message can be persisted or
// broadcast. join typically sends the history to a new client and registers it for
// live delivery. A history failure is passed to join with an empty history.
func (p *Pipeline) Join(ctx context.Context, join func(history []domain.Message, err error) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	history, err := p.History(ctx)
	return join(history, err)
}
