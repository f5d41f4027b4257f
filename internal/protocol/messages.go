// Package protocol defines the WebSocket message protocol between clients and the server.
package protocol

import (
	"time"

	"github.com/samber/lo"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
)

// Message types from client to server
const (
	TypeSendMessage = "send_message"
)

// Message types from server to client
const (
	TypeWelcome        = "welcome"
	TypeHistory        = "history"
	TypeReceiveMessage = "receive_message"
	TypeError          = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts,omitempty"`
}

// SendMessage is sent by a client to post a chat message.
type SendMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// WelcomeMessage tells a freshly connected client its display name.
type WelcomeMessage struct {
	BaseMessage
	Username string `json:"username"`
}

// ChatEntry is one persisted message as seen on the wire.
type ChatEntry struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HistoryMessage carries the full chat history, oldest first.
type HistoryMessage struct {
	BaseMessage
	Messages []ChatEntry `json:"messages"`
}

// ReceiveMessage is broadcast for every persisted message.
type ReceiveMessage struct {
	BaseMessage
	ChatEntry
}

// ErrorMessage is sent when a request from the client is not accepted.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeNoSession      = "no_session"
	ErrorCodeEmptyMessage   = "empty_message"
	ErrorCodeStorageError   = "storage_error"
	ErrorCodeDeliveryError  = "delivery_error"
)

// NewChatEntry converts a stored message. All fields come from the store.
func NewChatEntry(m domain.Message) ChatEntry {
	return ChatEntry{
		ID:        m.ID,
		Username:  m.Username,
		Message:   m.Body,
		Timestamp: m.FormattedTimestamp(),
	}
}

// NewChatEntries converts stored messages, keeping their order.
func NewChatEntries(messages []domain.Message) []ChatEntry {
	return lo.Map(messages, func(m domain.Message, _ int) ChatEntry {
		return NewChatEntry(m)
	})
}

// NewWelcome builds the welcome event.
func NewWelcome(username string) WelcomeMessage {
	return WelcomeMessage{
		BaseMessage: newBase(TypeWelcome),
		Username:    username,
	}
}

// NewHistory builds the history event.
func NewHistory(messages []domain.Message) HistoryMessage {
	return HistoryMessage{
		BaseMessage: newBase(TypeHistory),
		Messages:    NewChatEntries(messages),
	}
}

// NewReceiveMessage builds the broadcast event for a stored message.
func NewReceiveMessage(m domain.Message) ReceiveMessage {
	return ReceiveMessage{
		BaseMessage: newBase(TypeReceiveMessage),
		ChatEntry:   NewChatEntry(m),
	}
}

// NewError builds an error event.
func NewError(code, message string) ErrorMessage {
	return ErrorMessage{
		BaseMessage: newBase(TypeError),
		Code:        code,
		Message:     message,
	}
}

func newBase(typ string) BaseMessage {
	return BaseMessage{Type: typ, Ts: time.Now().UnixMilli()}
}
