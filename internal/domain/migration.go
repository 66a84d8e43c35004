package domain

import (
	"context"
	"fmt"
	"time"
)

// WriteMode selects how the backfill writes normalized users.
type WriteMode string

const (
	WriteModeInsertOnly        WriteMode = "insert_only"          // insert if absent, never touch existing documents
	WriteModeUpsertSetOnInsert WriteMode = "upsert_set_on_insert" // upsert by _id, fields only set when the upsert inserts
)

// ParseWriteMode validates a configured write mode.
func ParseWriteMode(s string) (WriteMode, error) {
	switch m := WriteMode(s); m {
	case WriteModeInsertOnly, WriteModeUpsertSetOnInsert:
		return m, nil
	default:
		return "", fmt.Errorf("unknown write mode %q (want %s or %s)", s, WriteModeInsertOnly, WriteModeUpsertSetOnInsert)
	}
}

// Pipeline names used in checkpoints, run logs and operator output.
const (
	PipelineBackfill = "backfill"
	PipelineCapture  = "capture"
)

// Checkpoint is the persisted position of a pipeline.
// Backfill uses Cursor (hex _id of the last flushed record); capture uses ResumeToken.
type Checkpoint struct {
	Pipeline    string    `json:"pipeline"`
	Cursor      string    `json:"cursor,omitempty"`
	ResumeToken []byte    `json:"resumeToken,omitempty"`
	Processed   int64     `json:"processed"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CheckpointStore persists pipeline positions across restarts.
// Load returns (nil, nil) when no checkpoint exists.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, pipeline string) (*Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	ClearCheckpoint(ctx context.Context, pipeline string) error
}

// Run statuses.
const (
	RunStatusCompleted = "completed"
	RunStatusPaused    = "paused"
	RunStatusStopped   = "stopped"
	RunStatusFailed    = "failed"
)

// RunLog is a historical record of one backfill pass or capture session.
type RunLog struct {
	ID         string    `json:"id"`
	Pipeline   string    `json:"pipeline"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     string    `json:"status"`
	Processed  int64     `json:"processed"`
	Written    int64     `json:"written"`
	Failed     int64     `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// RunLogStore records and lists run logs.
type RunLogStore interface {
	CreateRunLog(ctx context.Context, l *RunLog) error
	ListRunLogs(ctx context.Context, pipeline string, limit int) ([]RunLog, error)
}
