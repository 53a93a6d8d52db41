// Package logging holds the two loggers of cachebridge: the operational
// slog logger used by every package and the optional API access log.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	opLogger.Store(newLogger("text", os.Stderr))
}

// Op returns the operational logger.
func Op() *slog.Logger {
	return opLogger.Load()
}

// ForCache returns the operational logger tagged with a cache
// configuration name.
func ForCache(name string) *slog.Logger {
	return opLogger.Load().With("cache", name)
}

// SetLevelFromString sets the level from "debug", "info", "warn" (or
// "warning") or "error", case-insensitively. It reports false and leaves
// the level unchanged for anything else.
func SetLevelFromString(level string) bool {
	switch strings.ToLower(level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		return false
	}
	return true
}

func newLogger(format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
