// Package log provides leveled, structured logging for the rest of this
// module, built on top of log/slog. It adds the non-standard severities
// the storage engine and drivers want to distinguish (NOTICE, CRITICAL,
// ALERT, EMERGENCY) without pulling in a third-party logging library.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Extra levels sitting between and above the stdlib slog levels.
const (
	SlogLevelNotice    = slog.Level(2)
	SlogLevelCritical  = slog.Level(9)
	SlogLevelAlert     = slog.Level(13)
	SlogLevelEmergency = slog.Level(17)
)

var (
	mu      sync.RWMutex
	handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: mapLogLevelNames,
	})
	logger  = slog.New(handler)
	curious atomic.Bool // set true to enable Debugf output regardless of handler level
)

// SetHandler replaces the slog.Handler used for all package-level logging.
// Tests and the CLI use this to redirect output or change verbosity.
func SetHandler(h slog.Handler) {
	mu.Lock()
	defer mu.Unlock()
	handler = h
	logger = slog.New(h)
}

// SetDebug toggles whether Debugf calls are emitted irrespective of the
// handler's configured level, mirroring the teacher's -vv flag.
func SetDebug(on bool) {
	curious.Store(on)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// describe renders the first argument the way the teacher's fs.Debugf(o, ...)
// does: via fmt.Stringer when available, otherwise %v.
func describe(o any) string {
	if s, ok := o.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", o)
}

func logf(ctx context.Context, level slog.Level, o any, format string, args ...any) {
	l := current()
	if !curious.Load() && level == slog.LevelDebug && !l.Enabled(ctx, level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if o != nil {
		msg = describe(o) + ": " + msg
	}
	if level == slog.LevelDebug && !l.Enabled(ctx, level) {
		// Forced by SetDebug: Logger.Log would drop the record, so hand it
		// to the handler directly.
		_ = l.Handler().Handle(ctx, slog.NewRecord(time.Now(), level, msg, 0))
		return
	}
	l.Log(ctx, level, msg)
}

// Debugf logs at debug level, describing o (if non-nil) as a prefix.
func Debugf(o any, format string, args ...any) { logf(context.Background(), slog.LevelDebug, o, format, args...) }

// Infof logs at info level.
func Infof(o any, format string, args ...any) { logf(context.Background(), slog.LevelInfo, o, format, args...) }

// Logf logs at notice level — the teacher's "always shown, not a warning" level.
func Logf(o any, format string, args ...any) { logf(context.Background(), SlogLevelNotice, o, format, args...) }

// Errorf logs at error level.
func Errorf(o any, format string, args ...any) { logf(context.Background(), slog.LevelError, o, format, args...) }

// Fatalf logs at emergency level and exits the process, mirroring the
// teacher's fs.Fatalf used from cmd/ entry points.
func Fatalf(o any, format string, args ...any) {
	logf(context.Background(), SlogLevelEmergency, o, format, args...)
	os.Exit(1)
}

// slogLevelToString renders a level the way the teacher's custom handler
// does, falling back to (*slog.Level).String() for anything it doesn't know.
func slogLevelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case SlogLevelNotice:
		return "NOTICE"
	case slog.LevelWarn:
		return "WARNING"
	case slog.LevelError:
		return "ERROR"
	case SlogLevelCritical:
		return "CRITICAL"
	case SlogLevelAlert:
		return "ALERT"
	case SlogLevelEmergency:
		return "EMERGENCY"
	default:
		return level.String()
	}
}

// mapLogLevelNames lowercases and renames the level attribute emitted by
// slog's built-in handlers so log lines read "level=notice" rather than
// "level=INFO+2", and to surface the extra severities by name.
func mapLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	return slog.String(slog.LevelKey, toLower(slogLevelToString(level)))
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
