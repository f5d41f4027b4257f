// Package domain defines the core chat entities shared across packages.
package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// TimestampLayout is the wire and display format of message timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Limits applied to persisted messages. They must match the validate tags on Message.
const (
	MaxBodyLength     = 500
	MaxUsernameLength = 64
)

var validate = validator.New()

// Message is a persisted chat message. It is immutable once stored.
type Message struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username" validate:"required,min=1,max=64"`
	Body      string    `json:"message" validate:"required,max=500"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the username and body limits. Lengths count characters, not bytes.
func (m Message) Validate() error {
	return validate.Struct(m)
}

// FormattedTimestamp returns the timestamp in TimestampLayout.
func (m Message) FormattedTimestamp() string {
	return m.Timestamp.Format(TimestampLayout)
}
