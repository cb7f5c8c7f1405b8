package config

import (
	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/foundation/normalization"
)

// StoreDriver names a persistence backend.
type StoreDriver string

const (
	StoreSQLite   StoreDriver = "sqlite"
	StoreMySQL    StoreDriver = "mysql"
	StorePostgres StoreDriver = "postgres"
)

var storeDriverNormalizer = normalization.NewNormalizer(map[string]StoreDriver{
	"sqlite":     StoreSQLite,
	"sqlite3":    StoreSQLite,
	"mysql":      StoreMySQL,
	"mariadb":    StoreMySQL,
	"postgres":   StorePostgres,
	"postgresql": StorePostgres,
	"pg":         StorePostgres,
}, StoreSQLite)

// ProgressBackend names where progress snapshots are kept.
type ProgressBackend string

const (
	ProgressMemory ProgressBackend = "memory"
	ProgressNATS   ProgressBackend = "nats"
)

var progressBackendNormalizer = normalization.NewNormalizer(map[string]ProgressBackend{
	"memory": ProgressMemory,
	"nats":   ProgressNATS,
	"kv":     ProgressNATS,
}, ProgressMemory)

// LogLevel is a slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

// NormalizeLogLevel maps free-form input to a LogLevel, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel { return logLevelNormalizer.Normalize(raw) }

// NormalizeLogFormat maps free-form input to a LogFormat, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat { return logFormatNormalizer.Normalize(raw) }

// normalize canonicalizes enum fields that were set. Empty fields are left
// for applyDefaults.
func (c *Config) normalize() error {
	var err error
	if c.Store.Driver != "" {
		if c.Store.Driver, err = storeDriverNormalizer.NormalizeWithError(string(c.Store.Driver)); err != nil {
			return enumError("store.driver", err)
		}
	}
	if c.Progress.Backend != "" {
		if c.Progress.Backend, err = progressBackendNormalizer.NormalizeWithError(string(c.Progress.Backend)); err != nil {
			return enumError("progress.backend", err)
		}
	}
	if c.Logging.Level != "" {
		if c.Logging.Level, err = logLevelNormalizer.NormalizeWithError(string(c.Logging.Level)); err != nil {
			return enumError("logging.level", err)
		}
	}
	if c.Logging.Format != "" {
		if c.Logging.Format, err = logFormatNormalizer.NormalizeWithError(string(c.Logging.Format)); err != nil {
			return enumError("logging.format", err)
		}
	}
	return nil
}

func enumError(field string, err error) error {
	return errors.WrapError(err, errors.CategoryValidation, "invalid "+field).
		WithContext("field", field).
		Build()
}
