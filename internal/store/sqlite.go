package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	// mu serializes appends so ids and timestamps advance together.
	mu    sync.Mutex
	clock clock
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	inMemory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")

	db, err := sql.Open("sqlite3", withPragmas(dsn, inMemory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db, clock: newClock()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := store.recoverClock(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read last message: %w", err)
	}

	return store, nil
}

// withPragmas turns on WAL and full fsync for file databases unless the DSN already
// carries its own parameters.
func withPragmas(dsn string, inMemory bool) string {
	if inMemory || strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

func (s *SQLiteStore) recoverClock() error {
	var last time.Time
	err := s.db.QueryRow(`SELECT timestamp FROM messages ORDER BY id DESC LIMIT 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	s.clock.last = last.UTC()
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts a message. The insert is a single autocommit statement, so a failure
// leaves the table untouched.
func (s *SQLiteStore) Append(ctx context.Context, username, body string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.clock.next()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (username, message, timestamp) VALUES (?, ?, ?)`,
		username, body, ts.Format(domain.TimestampLayout))
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to read message id: %w", err)
	}

	return domain.Message{
		ID:        id,
		Username:  username,
		Body:      body,
		Timestamp: ts,
	}, nil
}

// History retrieves every message ordered by id.
func (s *SQLiteStore) History(ctx context.Context) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, message, timestamp FROM messages ORDER BY id ASC`)
	if err != nil {
		return []domain.Message{}, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.Username, &msg.Body, &msg.Timestamp); err != nil {
			return []domain.Message{}, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return []domain.Message{}, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}
