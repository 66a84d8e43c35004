package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migrator/internal/domain"
	"migrator/internal/storage"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "state", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := storage.NewCheckpointStore(openDB(t))

	cp, err := s.LoadCheckpoint(ctx, domain.PipelineBackfill)
	require.NoError(t, err)
	assert.Nil(t, cp)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveCheckpoint(ctx, &domain.Checkpoint{
		Pipeline:  domain.PipelineBackfill,
		Cursor:    "65e1d2c3b4a5968778695a4b",
		Processed: 200,
		UpdatedAt: at,
	}))
	require.NoError(t, s.SaveCheckpoint(ctx, &domain.Checkpoint{
		Pipeline:  domain.PipelineBackfill,
		Cursor:    "65e1d2c3b4a5968778695a4c",
		Processed: 300,
		UpdatedAt: at.Add(time.Minute),
	}))

	cp, err = s.LoadCheckpoint(ctx, domain.PipelineBackfill)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "65e1d2c3b4a5968778695a4c", cp.Cursor)
	assert.Equal(t, int64(300), cp.Processed)
	assert.True(t, at.Add(time.Minute).Equal(cp.UpdatedAt))
	assert.Empty(t, cp.ResumeToken)

	require.NoError(t, s.ClearCheckpoint(ctx, domain.PipelineBackfill))
	cp, err = s.LoadCheckpoint(ctx, domain.PipelineBackfill)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpointStore_ResumeToken(t *testing.T) {
	ctx := context.Background()
	s := storage.NewCheckpointStore(openDB(t))
	token := []byte{0x0d, 0x00, 0x00, 0x00, 0x10, 'n', 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}

	require.NoError(t, s.SaveCheckpoint(ctx, &domain.Checkpoint{Pipeline: domain.PipelineCapture, ResumeToken: token}))

	cp, err := s.LoadCheckpoint(ctx, domain.PipelineCapture)
	require.NoError(t, err)
	assert.Equal(t, token, cp.ResumeToken)
	assert.False(t, cp.UpdatedAt.IsZero())

	all, err := s.ListCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.PipelineCapture, all[0].Pipeline)
}

func TestRunLogStore_ListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := storage.NewRunLogStore(openDB(t))
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, pipeline := range []string{domain.PipelineBackfill, domain.PipelineCapture, domain.PipelineBackfill} {
		l := &domain.RunLog{
			Pipeline:   pipeline,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Status:     domain.RunStatusCompleted,
			Processed:  int64(i + 1),
		}
		require.NoError(t, s.CreateRunLog(ctx, l))
		assert.NotEmpty(t, l.ID)
	}
	require.NoError(t, s.CreateRunLog(ctx, &domain.RunLog{
		Pipeline:   domain.PipelineCapture,
		StartedAt:  base.Add(5 * time.Hour),
		FinishedAt: base.Add(6 * time.Hour),
		Status:     domain.RunStatusFailed,
		Error:      "change stream: connection reset",
	}))

	backfill, err := s.ListRunLogs(ctx, domain.PipelineBackfill, 10)
	require.NoError(t, err)
	require.Len(t, backfill, 2)
	assert.Equal(t, int64(3), backfill[0].Processed)
	assert.Equal(t, int64(1), backfill[1].Processed)

	all, err := s.ListRunLogs(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.RunStatusFailed, all[0].Status)
	assert.Equal(t, "change stream: connection reset", all[0].Error)
	assert.True(t, base.Add(5*time.Hour).Equal(all[0].StartedAt))
}
