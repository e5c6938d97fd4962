// Package logger provides the structured logging interface used across fleetwatch.
package logger

import (
	"fmt"
	"time"
)

// Level is a log severity.
type Level int8

// Log levels, ordered by severity.
const (
	LogLevelDebug Level = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLevel converts a configuration string into a Level.
// Unknown values fall back to LogLevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Field is a single structured key/value attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger is the structured logger handed to every component through its constructor.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that always carries the given fields.
	With(fields ...Field) Logger
	// Module returns a child logger tagged with a module name.
	Module(name string) Logger
	// IsDebugEnabled reports whether debug entries are emitted.
	IsDebugEnabled() bool
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

func Time(key string, value time.Time) Field { return Field{Key: key, Value: value} }

// Error attaches err under the "error" key. A nil error yields an empty string value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err}
}

// Any attaches an arbitrary value; it is rendered with %v when the backend has no native encoding.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

func (f Field) String() string {
	return fmt.Sprintf("%s=%v", f.Key, f.Value)
}
