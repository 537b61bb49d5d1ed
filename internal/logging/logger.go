// Package logging wraps zerolog with subsystem-scoped child loggers
// and the output styles used across Smith.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options control how the root logger is constructed.
type Options struct {
	Level string // "trace" .. "fatal", or "silent"
	Style string // "pretty" | "json"
	File  string // optional log file path; appended to when set
}

// Logger is a zerolog wrapper that hands out subsystem child loggers.
type Logger struct {
	zl zerolog.Logger
}

// New creates a root logger writing to w. If w is nil the output is
// chosen from opts: pretty console on stderr by default, raw JSON when
// opts.Style is "json", a file when opts.File is set.
func New(w io.Writer, opts Options) *Logger {
	if w == nil {
		w = pickWriter(opts)
	}
	zl := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(opts.Level))
	return &Logger{zl: zl}
}

// NewAt is a convenience for tests and call sites that only care about
// the level.
func NewAt(level string) *Logger {
	return New(nil, Options{Level: level})
}

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return &Logger{zl: l.zl.With().Str("subsystem", subsystem).Logger()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Zerolog exposes the underlying zerolog.Logger for advanced use.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

func pickWriter(opts Options) io.Writer {
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			return f
		}
		// Fall through to stderr when the file cannot be opened.
	}
	if opts.Style == "json" {
		return os.Stderr
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "silent":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
