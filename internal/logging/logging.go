// Package logging configures the process-wide zerolog logger and hands out
// named component child loggers, the way cuemby-warren/pkg/log does for its
// daemon components.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance. Init must run once at process
// startup before components call WithComponent.
var Logger zerolog.Logger

// Level mirrors the subset of zerolog levels exposed in config files.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration, typically populated from
// internal/config.Config.Log.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Safe to call more than once (e.g. in
// tests), unlike a sync.Once-guarded singleton.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	// Usable default before Init runs, e.g. from package init order or tests
	// that never call Init explicitly.
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the given component
// name, e.g. "job_manager", "watcher", "sync_engine".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithLibrary returns a child logger additionally tagged with a library id.
func WithLibrary(base zerolog.Logger, libraryID string) zerolog.Logger {
	return base.With().Str("library_id", libraryID).Logger()
}
