package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"migrator/internal/domain"
)

// Config keys. Each is also settable as MIGRATOR_<KEY> and, for the run
// command, as a --flag with dashes instead of underscores.
const (
	keyURI                   = "uri"
	keyDatabase              = "database"
	keySourceCollection      = "source_collection"
	keyDestinationCollection = "destination_collection"
	keyQuarantineCollection  = "quarantine_collection"
	keyBatchSize             = "batch_size"
	keyWriteMode             = "write_mode"
	keyLogs                  = "logs"
	keyCapture               = "capture"
	keyBackfill              = "backfill"
	keyResume                = "resume"
	keyStateDB               = "state_db"
	keyControlFile           = "control_file"
	keyStatusInterval        = "status_interval"
	keyWriteTimeout          = "write_timeout"
	keyShutdownTimeout       = "shutdown_timeout"
	keyLogLevel              = "log_level"
	keyLogFile               = "log_file"
	keyAppName               = "app_name"
)

const (
	envPrefix      = "MIGRATOR"
	configFileName = "migrator"
	configFileType = "yaml"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	URI                   string
	Database              string
	SourceCollection      string
	DestinationCollection string
	QuarantineCollection  string
	BatchSize             int
	WriteMode             domain.WriteMode
	Logs                  string
	Capture               bool
	Backfill              bool
	Resume                bool
	StateDB               string
	ControlFile           string
	StatusInterval        string
	WriteTimeout          time.Duration
	ShutdownTimeout       time.Duration
	LogLevel              string
	LogFile               string
	AppName               string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(keyURI, "mongodb://127.0.0.1:27017/freecodecamp?directConnection=true")
	v.SetDefault(keyDatabase, "")
	v.SetDefault(keySourceCollection, "user")
	v.SetDefault(keyDestinationCollection, "normalized_users")
	v.SetDefault(keyQuarantineCollection, "recovered_users")
	v.SetDefault(keyBatchSize, 100)
	v.SetDefault(keyWriteMode, string(domain.WriteModeUpsertSetOnInsert))
	v.SetDefault(keyLogs, "logs.log")
	v.SetDefault(keyCapture, true)
	v.SetDefault(keyBackfill, true)
	v.SetDefault(keyResume, false)
	v.SetDefault(keyStateDB, ".migrator/state.db")
	v.SetDefault(keyControlFile, "")
	v.SetDefault(keyStatusInterval, "")
	v.SetDefault(keyWriteTimeout, 30*time.Second)
	v.SetDefault(keyShutdownTimeout, time.Minute)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFile, "")
	v.SetDefault(keyAppName, "migrator")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// readConfigFile loads path, or ./migrator.yaml when path is empty.
// Only an explicitly named file has to exist.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func configFrom(v *viper.Viper) (Config, error) {
	cfg := Config{
		URI:                   v.GetString(keyURI),
		Database:              v.GetString(keyDatabase),
		SourceCollection:      v.GetString(keySourceCollection),
		DestinationCollection: v.GetString(keyDestinationCollection),
		QuarantineCollection:  v.GetString(keyQuarantineCollection),
		BatchSize:             v.GetInt(keyBatchSize),
		Logs:                  v.GetString(keyLogs),
		Capture:               v.GetBool(keyCapture),
		Backfill:              v.GetBool(keyBackfill),
		Resume:                v.GetBool(keyResume),
		StateDB:               v.GetString(keyStateDB),
		ControlFile:           v.GetString(keyControlFile),
		StatusInterval:        v.GetString(keyStatusInterval),
		WriteTimeout:          v.GetDuration(keyWriteTimeout),
		ShutdownTimeout:       v.GetDuration(keyShutdownTimeout),
		LogLevel:              v.GetString(keyLogLevel),
		LogFile:               v.GetString(keyLogFile),
		AppName:               v.GetString(keyAppName),
	}

	mode, err := domain.ParseWriteMode(v.GetString(keyWriteMode))
	if err != nil {
		return Config{}, err
	}
	cfg.WriteMode = mode

	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", keyBatchSize, cfg.BatchSize)
	}
	if cfg.URI == "" {
		return Config{}, fmt.Errorf("%s is required", keyURI)
	}
	if cfg.Logs == "" {
		return Config{}, fmt.Errorf("%s is required", keyLogs)
	}
	return cfg, nil
}
