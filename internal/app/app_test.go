package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migrator/internal/domain"
	"migrator/internal/storage"
)

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrator.log")
	log, closer, err := newLogger("warn", path, nil)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("component", "mongo").Msg("slow ping")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"component":"mongo"`)
	assert.Contains(t, string(data), `"message":"slow ping"`)
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := newLogger("", "", &buf)
	require.NoError(t, err)
	defer closer.Close()

	log.Debug().Msg("hidden")
	log.Info().Msg("connected")
	assert.Contains(t, buf.String(), "connected")
	assert.NotContains(t, buf.String(), "hidden")

	_, _, err = newLogger("loud", "", &buf)
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.New(dbPath)
	require.NoError(t, err)

	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, storage.NewCheckpointStore(db).SaveCheckpoint(ctx, &domain.Checkpoint{
		Pipeline: domain.PipelineBackfill, Cursor: "65e1d2c3b4a5968778695a4b", Processed: 4200, UpdatedAt: at,
	}))
	require.NoError(t, storage.NewRunLogStore(db).CreateRunLog(ctx, &domain.RunLog{
		Pipeline: domain.PipelineCapture, StartedAt: at, FinishedAt: at.Add(time.Minute),
		Status: domain.RunStatusFailed, Processed: 7, Written: 6, Error: "change stream: connection reset",
	}))
	require.NoError(t, db.Close())

	var out bytes.Buffer
	cmd := newRootCommand(strings.NewReader(""), &out, &bytes.Buffer{})
	cmd.SetArgs([]string{"status", "--state-db", dbPath, "--log-level", "error"})
	require.NoError(t, cmd.ExecuteContext(ctx))

	got := out.String()
	assert.Contains(t, got, "Checkpoints")
	assert.Contains(t, got, "65e1d2c3b4a5968778695a4b")
	assert.Contains(t, got, "processed=4200")
	assert.Contains(t, got, "Recent runs")
	assert.Contains(t, got, "capture")
	assert.Contains(t, got, "processed=7 written=6 failed=0")
	assert.Contains(t, got, "change stream: connection reset")
}

func TestStatusCommand_Empty(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand(strings.NewReader(""), &out, &bytes.Buffer{})
	cmd.SetArgs([]string{"status", "--state-db", filepath.Join(t.TempDir(), "new.db")})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, 2, strings.Count(out.String(), "none"))
}

func TestSeedCommand_RequiresCount(t *testing.T) {
	cmd := newRootCommand(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{"seed"})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "count")
}

func TestRunCommand_RejectsBadWriteMode(t *testing.T) {
	cmd := newRootCommand(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--write-mode", "overwrite"})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "unknown write mode")
}
