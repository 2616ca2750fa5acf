package util

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger, used by the
// command-line entry points. All output goes to stderr by default.

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Logger is a structured logger handed to the signaling, webrtc and session
// packages. Key/value pairs bound with With are prepended to every entry.
// A nil *Logger discards everything.
type Logger struct {
	out  *pterm.Logger
	args []any
}

// NewLogger returns a Logger writing through pterm.DefaultLogger. The level
// is read at call time, so EnableDebug applies to loggers created earlier.
func NewLogger() *Logger {
	return &Logger{}
}

// Discard returns a Logger that drops all entries.
func Discard() *Logger {
	return &Logger{out: pterm.DefaultLogger.WithWriter(io.Discard)}
}

// With returns a child logger carrying additional key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	merged := make([]any, 0, len(l.args)+len(args))
	merged = append(merged, l.args...)
	merged = append(merged, args...)
	return &Logger{out: l.out, args: merged}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(pterm.LogLevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(pterm.LogLevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(pterm.LogLevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(pterm.LogLevelError, msg, args) }

func (l *Logger) log(level pterm.LogLevel, msg string, args []any) {
	if l == nil {
		return
	}

	out := l.out
	if out == nil {
		out = &pterm.DefaultLogger
	}

	kv := make([]any, 0, len(l.args)+len(args))
	kv = append(kv, l.args...)
	kv = append(kv, args...)
	fields := out.Args(kv...)

	switch level {
	case pterm.LogLevelDebug:
		out.Debug(msg, fields)
	case pterm.LogLevelInfo:
		out.Info(msg, fields)
	case pterm.LogLevelWarn:
		out.Warn(msg, fields)
	default:
		out.Error(msg, fields)
	}
}
