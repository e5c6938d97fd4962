package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// zerologLogger adapts zerolog to the Logger interface.
type zerologLogger struct {
	zl    zerolog.Logger
	level Level
}

// NewZerologLogger creates a JSON logger writing to w.
func NewZerologLogger(w io.Writer, level Level) Logger {
	zl := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &zerologLogger{zl: zl, level: level}
}

// NewConsoleLogger creates a human readable logger on stderr, used by the CLI.
func NewConsoleLogger(level Level) Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	zl := zerolog.New(out).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &zerologLogger{zl: zl, level: level}
}

func toZerologLevel(level Level) zerolog.Level {
	switch level {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zerologLogger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), msg, fields) }

func (l *zerologLogger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = appendContext(ctx, f)
	}
	return &zerologLogger{zl: ctx.Logger(), level: l.level}
}

func (l *zerologLogger) Module(name string) Logger {
	return &zerologLogger{zl: l.zl.With().Str("module", name).Logger(), level: l.level}
}

func (l *zerologLogger) IsDebugEnabled() bool {
	return l.level <= LogLevelDebug
}

func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		ev = appendEvent(ev, f)
	}
	ev.Msg(msg)
}

func appendEvent(ev *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return ev.Str(f.Key, v)
	case int:
		return ev.Int(f.Key, v)
	case int64:
		return ev.Int64(f.Key, v)
	case uint64:
		return ev.Uint64(f.Key, v)
	case float64:
		return ev.Float64(f.Key, v)
	case bool:
		return ev.Bool(f.Key, v)
	case time.Duration:
		return ev.Dur(f.Key, v)
	case time.Time:
		return ev.Time(f.Key, v)
	case error:
		return ev.AnErr(f.Key, v)
	default:
		return ev.Interface(f.Key, v)
	}
}

func appendContext(ctx zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return ctx.Str(f.Key, v)
	case int:
		return ctx.Int(f.Key, v)
	case int64:
		return ctx.Int64(f.Key, v)
	case uint64:
		return ctx.Uint64(f.Key, v)
	case error:
		return ctx.AnErr(f.Key, v)
	default:
		return ctx.Interface(f.Key, v)
	}
}
