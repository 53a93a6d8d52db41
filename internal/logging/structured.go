package logging

import (
	"io"
	"log/slog"
	"os"
)

// InitStructured replaces the operational logger. format is "text"
// (default) or "json"; level is applied as by SetLevelFromString.
func InitStructured(format, level string) {
	InitStructuredTo(os.Stderr, format, level)
}

// InitStructuredTo is InitStructured writing to w.
func InitStructuredTo(w io.Writer, format, level string) {
	SetLevelFromString(level)
	opLogger.Store(newLogger(format, w))
}

// OpWithTrace returns the operational logger with trace_id and span_id
// attributes when a trace is active.
func OpWithTrace(traceID, spanID string) *slog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return l
	}
	args := []any{"trace_id", traceID}
	if spanID != "" {
		args = append(args, "span_id", spanID)
	}
	return l.With(args...)
}
