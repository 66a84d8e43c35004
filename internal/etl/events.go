package etl

import (
	"context"
	"fmt"
)

// EventEmitter receives operator-facing events from the pipelines.
// Implementations must be safe for concurrent use.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Event names.
const (
	EventBackfillProgress  = "backfill:progress"
	EventBackfillDone      = "backfill:done"
	EventCaptureSubscribed = "capture:subscribed"
	EventToggle            = "toggle"
	EventStatus            = "status"
	EventPipelineError     = "pipeline:error"
)

// Progress is emitted every time the backfill crosses a 1% milestone.
type Progress struct {
	Processed int64
	Total     int64
}

func (p Progress) String() string {
	return fmt.Sprintf("Users Processed: %d / %d", p.Processed, p.Total)
}

// Toggled is emitted when an operator flips a run flag.
type Toggled struct {
	Pipeline string
	Active   bool
}

func (t Toggled) String() string {
	state := "off"
	if t.Active {
		state = "on"
	}
	return t.Pipeline + ": " + state
}

// PipelineFailed is emitted when a pipeline run ends with an I/O error.
type PipelineFailed struct {
	Pipeline string
	Err      error
}

func (p PipelineFailed) String() string {
	return fmt.Sprintf("%s: stopped: %v (toggle to restart)", p.Pipeline, p.Err)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, any) {}

func emitterOr(e EventEmitter) EventEmitter {
	if e == nil {
		return nopEmitter{}
	}
	return e
}
