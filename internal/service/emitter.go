package service

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"migrator/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// ConsoleEmitter: operator output on stdout
// ─────────────────────────────────────────────────────────────

// ConsoleEmitter prints pipeline events as plain lines for the operator.
// Structured logs go to the logger; these lines are the interactive
// surface (progress, toggle confirmations, failures).
type ConsoleEmitter struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

func NewConsoleEmitter(out io.Writer, log zerolog.Logger) *ConsoleEmitter {
	return &ConsoleEmitter{out: out, log: log}
}

func (e *ConsoleEmitter) Emit(_ context.Context, event string, data any) {
	line := formatEvent(event, data)
	if line == "" {
		e.log.Debug().Str("event", event).Interface("data", data).Msg("unprinted event")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintln(e.out, line)
}

func formatEvent(event string, data any) string {
	switch event {
	case etl.EventBackfillDone:
		if s, ok := data.(etl.StatsSnapshot); ok {
			return fmt.Sprintf("Backfill complete: %d processed, %d written, %d failed", s.Processed, s.Written, s.Failed)
		}
		return "Backfill complete"
	case etl.EventCaptureSubscribed:
		return "Change capture subscribed"
	case etl.EventToggle:
		// The console that issued the toggle already answered.
		return ""
	}
	if s, ok := data.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}

// ─────────────────────────────────────────────────────────────
// MockEmitter: records emissions for tests
// ─────────────────────────────────────────────────────────────

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the payloads recorded for event, in order.
func (m *MockEmitter) Named(event string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}
