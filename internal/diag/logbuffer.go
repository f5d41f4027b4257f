// Package diag provides the process logger and the in-memory log tail served on /logs.
package diag

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// LogBuffer keeps the most recent log output up to a fixed number of bytes.
// It is safe for concurrent use.
type LogBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

// NewLogBuffer creates a buffer holding at most limit bytes. A limit of 0 keeps nothing.
func NewLogBuffer(limit int) *LogBuffer {
	if limit < 0 {
		limit = 0
	}
	return &LogBuffer{limit: limit}
}

// Write appends p, discarding the oldest bytes once the limit is reached.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit == 0 {
		return len(p), nil
	}
	if len(p) >= b.limit {
		b.buf = append(b.buf[:0], p[len(p)-b.limit:]...)
		return len(p), nil
	}

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

// String returns the buffered log text.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Len returns the number of buffered bytes.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// NewLogger builds a text logger writing to stdout and every extra writer.
func NewLogger(level slog.Level, extra ...io.Writer) *slog.Logger {
	w := io.Writer(os.Stdout)
	if len(extra) > 0 {
		w = io.MultiWriter(append([]io.Writer{os.Stdout}, extra...)...)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
