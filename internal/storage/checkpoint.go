package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"migrator/internal/domain"
)

// CheckpointStore persists pipeline positions.
type CheckpointStore struct {
	db *DB
}

var _ domain.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) LoadCheckpoint(ctx context.Context, pipeline string) (*domain.Checkpoint, error) {
	cp := &domain.Checkpoint{}
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT pipeline, cursor, resume_token, processed, updated_at
		 FROM checkpoints WHERE pipeline = ?`, pipeline,
	).Scan(&cp.Pipeline, &cp.Cursor, &cp.ResumeToken, &cp.Processed, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", pipeline, err)
	}
	return cp, nil
}

func (s *CheckpointStore) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO checkpoints (pipeline, cursor, resume_token, processed, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(pipeline) DO UPDATE SET
		   cursor = excluded.cursor,
		   resume_token = excluded.resume_token,
		   processed = excluded.processed,
		   updated_at = excluded.updated_at`,
		cp.Pipeline, cp.Cursor, cp.ResumeToken, cp.Processed, cp.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Pipeline, err)
	}
	return nil
}

func (s *CheckpointStore) ClearCheckpoint(ctx context.Context, pipeline string) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM checkpoints WHERE pipeline = ?`, pipeline); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", pipeline, err)
	}
	return nil
}

// ListCheckpoints returns every stored checkpoint ordered by pipeline.
func (s *CheckpointStore) ListCheckpoints(ctx context.Context) ([]domain.Checkpoint, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT pipeline, cursor, resume_token, processed, updated_at
		 FROM checkpoints ORDER BY pipeline`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cps []domain.Checkpoint
	for rows.Next() {
		var cp domain.Checkpoint
		if err := rows.Scan(&cp.Pipeline, &cp.Cursor, &cp.ResumeToken, &cp.Processed, &cp.UpdatedAt); err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}
