package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"migrator/internal/domain"
)

// RunLogStore records one row per backfill pass or capture session.
type RunLogStore struct {
	db *DB
}

var _ domain.RunLogStore = (*RunLogStore)(nil)

func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

func (s *RunLogStore) CreateRunLog(ctx context.Context, l *domain.RunLog) error {
	l.ID = uuid.New().String()
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO run_logs (id, pipeline, started_at, finished_at, status, processed, written, failed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Pipeline, l.StartedAt.UTC(), l.FinishedAt.UTC(), l.Status, l.Processed, l.Written, l.Failed, l.Error,
	)
	if err != nil {
		return fmt.Errorf("create run log: %w", err)
	}
	return nil
}

// ListRunLogs returns the most recent logs first. An empty pipeline lists
// every pipeline.
func (s *RunLogStore) ListRunLogs(ctx context.Context, pipeline string, limit int) ([]domain.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, pipeline, started_at, finished_at, status, processed, written, failed, error
		 FROM run_logs WHERE (? = '' OR pipeline = ?)
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		pipeline, pipeline, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.RunLog
	for rows.Next() {
		var l domain.RunLog
		if err := rows.Scan(&l.ID, &l.Pipeline, &l.StartedAt, &l.FinishedAt, &l.Status, &l.Processed, &l.Written, &l.Failed, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
