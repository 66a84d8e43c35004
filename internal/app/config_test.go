package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migrator/internal/domain"
)

func TestConfig_Defaults(t *testing.T) {
	v := newViper()
	require.NoError(t, readConfigFile(v, ""))

	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://127.0.0.1:27017/freecodecamp?directConnection=true", cfg.URI)
	assert.Equal(t, "user", cfg.SourceCollection)
	assert.Equal(t, "normalized_users", cfg.DestinationCollection)
	assert.Equal(t, "recovered_users", cfg.QuarantineCollection)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, domain.WriteModeUpsertSetOnInsert, cfg.WriteMode)
	assert.Equal(t, "logs.log", cfg.Logs)
	assert.True(t, cfg.Capture)
	assert.True(t, cfg.Backfill)
	assert.False(t, cfg.Resume)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
}

func TestConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
batch_size: 500
write_mode: insert_only
capture: false
status_interval: "@every 10s"
write_timeout: 5s
`), 0o644))
	t.Setenv("MIGRATOR_BATCH_SIZE", "250")

	v := newViper()
	require.NoError(t, readConfigFile(v, path))
	cfg, err := configFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.BatchSize, "env wins over the file")
	assert.Equal(t, domain.WriteModeInsertOnly, cfg.WriteMode)
	assert.False(t, cfg.Capture)
	assert.Equal(t, "@every 10s", cfg.StatusInterval)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestConfig_ExplicitFileMustExist(t *testing.T) {
	v := newViper()
	assert.Error(t, readConfigFile(v, filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{key: keyBatchSize, value: 0},
		{key: keyBatchSize, value: -5},
		{key: keyWriteMode, value: "overwrite"},
		{key: keyURI, value: ""},
		{key: keyLogs, value: ""},
	}
	for _, tt := range tests {
		v := newViper()
		v.Set(tt.key, tt.value)
		_, err := configFrom(v)
		assert.Error(t, err, "%s=%v", tt.key, tt.value)
	}
}
