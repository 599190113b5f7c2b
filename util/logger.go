// Package util provides low-level helpers shared by all other packages.
package util

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// LogFormat selects the output encoding.
type LogFormat string

const (
	FormatConsole LogFormat = "console" // human-readable, one line per event
	FormatJSON    LogFormat = "json"    // one JSON object per event
)

// Logger writes levelled messages through zerolog.  Error always
// prints; Warn and Info need verbosity ≥ 1, Verbose ≥ 2, Debug ≥ 3.
type Logger struct {
	zl         zerolog.Logger
	level      LogLevel
	output     io.Writer
	format     LogFormat
	timestamps bool // if true, every event carries a time field
}

// NewLogger returns a console Logger on stderr that prints messages at
// or below the given verbosity (0 = quiet, 1 = normal, 2 = verbose,
// 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		format:     FormatConsole,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamps.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on; l.rebuild() }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.output = w; l.rebuild() }

// SetFormat switches between console and JSON output.
func (l *Logger) SetFormat(f LogFormat) { l.format = f; l.rebuild() }

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that adds key=value to every event.
// Changing the parent's output afterwards does not affect the child.
func (l *Logger) With(key string, value interface{}) *Logger {
	child := *l
	child.zl = l.zl.With().Interface(key, value).Logger()
	return &child
}

// Zerolog exposes the underlying logger for structured call sites.
func (l *Logger) Zerolog() *zerolog.Logger { return &l.zl }

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Verbose prints when verbosity ≥ 2.  Rendered at zerolog's debug level.
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Debug prints when verbosity ≥ 3.  Rendered at zerolog's trace level,
// which the global level (debug unless the program lowers it) filters.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Trace().Msgf(format, args...)
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

func (l *Logger) rebuild() {
	w := l.output
	if l.format != FormatJSON {
		cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05.000"}
		if !l.timestamps {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		w = cw
	}
	ctx := zerolog.New(zerolog.SyncWriter(w)).Level(zerologLevel(l.level)).With()
	if l.timestamps {
		ctx = ctx.Timestamp()
	}
	l.zl = ctx.Logger()
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch {
	case level <= LogQuiet:
		return zerolog.ErrorLevel
	case level == LogNormal:
		return zerolog.InfoLevel
	case level == LogVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}
