package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is a component-scoped logger with printf-style methods.
// Entries are encoded and written by zap.
type Logger struct {
	level     Level
	component string
	base      *zap.Logger
	sugar     *zap.SugaredLogger
}

// NewLogger creates a logger for a component writing to output (stdout when nil).
func NewLogger(component string, level Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	core := zapcore.NewCore(newConsoleEncoder(), zapcore.AddSync(output), level.zapLevel())
	return newLogger(component, level, core)
}

// NewTeeLogger creates a logger that writes human readable entries to console
// and JSON entries to file.
func NewTeeLogger(component string, level Level, console io.Writer, file zapcore.WriteSyncer) *Logger {
	if console == nil {
		console = os.Stdout
	}
	core := zapcore.NewTee(
		zapcore.NewCore(newConsoleEncoder(), zapcore.AddSync(console), level.zapLevel()),
		zapcore.NewCore(newFileEncoder(), file, level.zapLevel()),
	)
	return newLogger(component, level, core)
}

func newLogger(component string, level Level, core zapcore.Core) *Logger {
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Named(component)
	return &Logger{
		level:     level,
		component: component,
		base:      base,
		sugar:     base.Sugar(),
	}
}

// Named returns a logger for another component sharing the same outputs.
func (l *Logger) Named(component string) *Logger {
	// zap joins nested names with a dot; components stay flat
	return newLogger(component, l.level, l.base.Core())
}

// Level reports the minimum level this logger emits.
func (l *Logger) Level() Level {
	return l.level
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// WithContext returns a new Logger with an added context field
func (l *Logger) WithContext(key string, value interface{}) *Logger {
	return l.with([]interface{}{key, value})
}

// WithFields returns a new Logger with multiple context fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return l.with(kv)
}

func (l *Logger) with(kv []interface{}) *Logger {
	sugar := l.sugar.With(kv...)
	return &Logger{
		level:     l.level,
		component: l.component,
		base:      sugar.Desugar(),
		sugar:     sugar,
	}
}

// Zap exposes the underlying zap logger for libraries that take one.
func (l *Logger) Zap() *zap.Logger {
	return l.base.WithOptions(zap.AddCallerSkip(-2))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	msg = sanitizeMessage(msg)

	switch level {
	case DEBUG:
		l.sugar.Debug(msg)
	case INFO:
		l.sugar.Info(msg)
	case WARN:
		l.sugar.Warn(msg)
	default:
		l.sugar.Error(msg)
	}
}

// ParseLevel converts a string to a Level
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
