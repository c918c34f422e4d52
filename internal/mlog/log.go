// Package mlog is mqloop's structured logger, adapted from the teacher's
// pkg/log/log.go: a package-level zerolog.Logger configured once at
// startup, plus small With* helpers that attach a component/resource
// field the way the rest of the codebase scopes its log lines.
package mlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init must be called before use;
// until then it logs to a plain console writer on os.Stdout.
var Logger zerolog.Logger

// Level is a logging verbosity, matching zerolog's own level names.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func init() {
	Init(Config{Level: InfoLevel})
}

// Init (re)configures the package-level Logger.
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
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}

// WithQueue scopes a logger to a named MultiQueue, for loop/event log
// lines.
func WithQueue(name string) zerolog.Logger {
	return Logger.With().Str("queue", name).Logger()
}

// WithWatcher scopes a logger to a watcher kind and instance id.
func WithWatcher(kind, id string) zerolog.Logger {
	return Logger.With().Str("watcher_kind", kind).Str("watcher_id", id).Logger()
}

// WithProcess scopes a logger to a supervised process's pid.
func WithProcess(pid int) zerolog.Logger {
	return Logger.With().Int("pid", pid).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

// Errorf logs msg with err attached as the "error" field.
func Errorf(msg string, err error) { Logger.Error().Err(err).Msg(msg) }

// Fatal logs msg at fatal level and exits the process.
func Fatal(msg string) { Logger.Fatal().Msg(msg) }
