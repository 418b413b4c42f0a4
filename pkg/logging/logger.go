// Package logging provides the leveled, prefix-hierarchical logger used
// throughout the orchestrator and supervisor. A nil *Logger is valid and
// silently discards everything, so components can be handed a logger
// unconditionally without a presence check at every call site.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

// debugEnabled controls whether Debug/Debugf output is ever emitted,
// regardless of a particular logger's configured level. It mirrors the
// MIGRATOR_DEBUG environment variable so that debug instrumentation can be
// compiled in but left dormant in production runs.
var debugEnabled = os.Getenv("MIGRATOR_DEBUG") == "1"

// writer is an io.Writer that splits its input stream into lines and
// forwards each complete line to an underlying logging callback.
type writer struct {
	callback func(string)
	buffer   []byte
}

func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. A nil *Logger is valid and logs nothing.
// Loggers are safe for concurrent use.
type Logger struct {
	level  Level
	prefix string
	target *log.Logger
}

// RootLogger is a logger at LevelInfo writing to standard error, suitable as
// a default when no explicit logger has been configured.
var RootLogger = NewLogger(LevelInfo, os.Stderr)

// NewLogger creates a logger that writes to output, emitting only messages
// at or below the specified level.
func NewLogger(level Level, output io.Writer) *Logger {
	return &Logger{
		level:  level,
		target: log.New(output, "", log.Ldate|log.Ltime),
	}
}

// Sublogger creates a new logger with the given name appended to the prefix
// hierarchy (e.g. "orchestrator" -> "orchestrator.alice"). The sublogger
// shares the parent's level and output target.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{
		level:  l.level,
		prefix: prefix,
		target: l.target,
	}
}

func (l *Logger) output(line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	l.target.Output(3, line)
}

// Info logs basic execution information if the logger's level is at least
// LevelInfo.
func (l *Logger) Info(v ...interface{}) {
	if l != nil && l.level >= LevelInfo {
		l.output(fmt.Sprint(v...))
	}
}

// Infof is the formatted equivalent of Info.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil && l.level >= LevelInfo {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Warn logs a non-fatal error in yellow if the logger's level is at least
// LevelWarn.
func (l *Logger) Warn(v ...interface{}) {
	if l != nil && l.level >= LevelWarn {
		l.output(color.YellowString("Warning: %s", fmt.Sprint(v...)))
	}
}

// Warnf is the formatted equivalent of Warn.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l != nil && l.level >= LevelWarn {
		l.output(color.YellowString("Warning: " + fmt.Sprintf(format, v...)))
	}
}

// Error logs a fatal or serious error in red if the logger's level is at
// least LevelError.
func (l *Logger) Error(v ...interface{}) {
	if l != nil && l.level >= LevelError {
		l.output(color.RedString("Error: %s", fmt.Sprint(v...)))
	}
}

// Errorf is the formatted equivalent of Error.
func (l *Logger) Errorf(format string, v ...interface{}) {
	if l != nil && l.level >= LevelError {
		l.output(color.RedString("Error: " + fmt.Sprintf(format, v...)))
	}
}

// Debug logs advanced execution information if the logger's level is at
// least LevelDebug and debugging is enabled via MIGRATOR_DEBUG.
func (l *Logger) Debug(v ...interface{}) {
	if l != nil && debugEnabled && l.level >= LevelDebug {
		l.output(fmt.Sprint(v...))
	}
}

// Debugf is the formatted equivalent of Debug.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil && debugEnabled && l.level >= LevelDebug {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Writer returns an io.Writer that logs each line written to it using Info.
// It's used to redirect subprocess or library output into the log.
func (l *Logger) Writer() io.Writer {
	if l == nil {
		return io.Discard
	}
	return &writer{callback: l.Info}
}

// DebugWriter returns an io.Writer that logs each line written to it using
// Debug.
func (l *Logger) DebugWriter() io.Writer {
	if l == nil {
		return io.Discard
	}
	return &writer{callback: l.Debug}
}
