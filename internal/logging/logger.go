package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// RequestLog represents a single API request log entry
type RequestLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Cache      string    `json:"cache,omitempty"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	Subject    string    `json:"subject,omitempty"`
}

// Logger handles request logging
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console io.Writer
}

var defaultLogger = &Logger{}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// Configure sets the access log destination: "" disables it, "-" writes
// human-readable lines to stdout and anything else is a JSON lines file.
func (l *Logger) Configure(dest string) error {
	switch dest {
	case "":
		l.Close()
		l.mu.Lock()
		l.enabled, l.console = false, nil
		l.mu.Unlock()
		return nil
	case "-":
		l.Close()
		l.SetConsole(os.Stdout)
		return nil
	default:
		l.SetConsole(nil)
		return l.SetOutput(dest)
	}
}

// SetOutput sets the log output file
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	l.enabled = true
	return nil
}

// SetConsole enables human-readable output to w, or disables it when w is nil.
func (l *Logger) SetConsole(w io.Writer) {
	l.mu.Lock()
	l.console = w
	l.enabled = w != nil || l.file != nil
	l.mu.Unlock()
}

// Enabled reports whether entries are written anywhere.
func (l *Logger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Log writes a request log entry
func (l *Logger) Log(entry *RequestLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if l.console != nil {
		status := "✓"
		if entry.Status >= 400 {
			status = "✗"
		}
		cache := ""
		if entry.Cache != "" {
			cache = " [" + entry.Cache + "]"
		}
		fmt.Fprintf(l.console, "[request] %s %s %s %s %d %dms%s\n",
			status, entry.RequestID, entry.Method, entry.Route, entry.Status, entry.DurationMs, cache)
		if entry.Error != "" {
			fmt.Fprintf(l.console, "[request]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	l.enabled = l.console != nil
}
