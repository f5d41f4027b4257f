package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
)

const (
	messagePrefix   = "msg:"
	messageSequence = "seq:messages"
	sequenceLease   = 64
)

// BadgerStore implements Store on top of BadgerDB.
// Keys are "msg:{id}" with the id zero padded to 20 digits, so the natural key order
// of a prefix scan is the id order.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence

	mu    sync.Mutex
	clock clock
}

// NewBadgerStore opens (or creates) a Badger message log at path. An empty path opens
// an in-memory database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(messageSequence), sequenceLease)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open message sequence: %w", err)
	}

	s := &BadgerStore{db: db, seq: seq, clock: newClock()}
	if err := s.recoverClock(); err != nil {
		_ = seq.Release()
		db.Close()
		return nil, fmt.Errorf("failed to read last message: %w", err)
	}

	return s, nil
}

func messageKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, id))
}

func (s *BadgerStore) recoverClock() error {
	return s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = []byte(messagePrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the highest possible id, then step back onto the last message.
		it.Seek(append([]byte(messagePrefix), '~'))
		if !it.ValidForPrefix(options.Prefix) {
			return nil
		}

		return it.Item().Value(func(val []byte) error {
			var last domain.Message
			if err := json.Unmarshal(val, &last); err != nil {
				return err
			}
			s.clock.last = last.Timestamp.UTC()
			return nil
		})
	})
}

// Append stores a message under the next sequence id.
// An id drawn for a failed write is skipped, never reused.
func (s *BadgerStore) Append(ctx context.Context, username, body string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to allocate message id: %w", err)
	}

	msg := domain.Message{
		ID:        int64(n) + 1,
		Username:  username,
		Body:      body,
		Timestamp: s.clock.next(),
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.ID), value)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	return msg, nil
}

// History scans the message prefix in key order.
func (s *BadgerStore) History(ctx context.Context) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return []domain.Message{}, err
	}

	messages := []domain.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return err
				}
				msg.Timestamp = msg.Timestamp.UTC()
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return []domain.Message{}, fmt.Errorf("failed to read messages: %w", err)
	}

	return messages, nil
}

// Close releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to release message sequence: %w", err)
	}
	return s.db.Close()
}
