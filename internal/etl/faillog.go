package etl

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// FailureLog is the append-only log sink for records that could not be
// migrated. Each entry is a single "<tag>: <message>" line. Both pipelines
// share one FailureLog.
type FailureLog struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// OpenFailureLog opens (or creates) path for appending.
func OpenFailureLog(path string) (*FailureLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	return &FailureLog{w: f, c: f}, nil
}

// NewFailureLog wraps an existing writer. Close is a no-op.
func NewFailureLog(w io.Writer) *FailureLog {
	return &FailureLog{w: w}
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Append writes one line. Embedded newlines are flattened so that every
// entry stays on a single line.
func (l *FailureLog) Append(tag, msg string) error {
	line := lineBreaks.Replace(tag) + ": " + lineBreaks.Replace(msg) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, line); err != nil {
		return fmt.Errorf("write failure log: %w", err)
	}
	return nil
}

func (l *FailureLog) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}
