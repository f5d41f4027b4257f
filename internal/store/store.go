//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../../mocks/mock_store.go -package=mocks

// Package store defines the message log interface and its implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

// Store is the durable, append-only chat message log.
type Store interface {
	// Append assigns id and timestamp, persists the message and returns the stored record.
	// The message is durable once Append returns without error.
	Append(ctx context.Context, username, body string) (domain.Message, error)

	// History returns every persisted message in ascending id order. On failure it returns
	// an empty slice together with the error.
	History(ctx context.Context) ([]domain.Message, error)

	// Close releases the underlying database.
	Close() error
}

// Options selects and configures a Store driver.
type Options struct {
	Driver      string
	DatabaseURL string
	BadgerPath  string
}

// Open opens the store selected by opts.Driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return NewSQLiteStore(opts.DatabaseURL)
	case DriverBadger:
		return NewBadgerStore(opts.BadgerPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

// clock hands out second-precision UTC timestamps that never go backwards, even if the
// wall clock does. Callers serialize access.
type clock struct {
	now  func() time.Time
	last time.Time
}

func newClock() clock {
	return clock{now: time.Now}
}

func (c *clock) next() time.Time {
	ts := c.now().UTC().Truncate(time.Second)
	if ts.Before(c.last) {
		ts = c.last
	}
	c.last = ts
	return ts
}
