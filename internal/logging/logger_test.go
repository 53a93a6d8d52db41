package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{}
	l.Log(&RequestLog{RequestID: "ignored"})
	if buf.Len() != 0 || l.Enabled() {
		t.Fatalf("disabled logger must not write")
	}

	l.SetConsole(&buf)
	l.Log(&RequestLog{RequestID: "r1", Method: "GET", Route: "/v1/caches", Status: 200, Cache: "default"})
	l.Log(&RequestLog{RequestID: "r2", Method: "PUT", Route: "/v1/caches/:cache/items/:key", Status: 400, Error: "bad ttl"})

	out := buf.String()
	if !strings.Contains(out, "✓ r1 GET /v1/caches 200") || !strings.Contains(out, "[default]") {
		t.Fatalf("unexpected console output: %q", out)
	}
	if !strings.Contains(out, "✗ r2") || !strings.Contains(out, "error: bad ttl") {
		t.Fatalf("expected failure line, got %q", out)
	}
}

func TestLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	l := &Logger{}
	if err := l.Configure(path); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	l.Log(&RequestLog{RequestID: "r1", Method: "DELETE", Status: 200})
	l.Close()
	if l.Enabled() {
		t.Fatalf("closed file logger should be disabled")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry RequestLog
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry.RequestID != "r1" || entry.Timestamp.IsZero() {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestLogger_ConfigureDisable(t *testing.T) {
	l := &Logger{}
	if err := l.Configure("-"); err != nil || !l.Enabled() {
		t.Fatalf("console destination should enable the logger (%v)", err)
	}
	if err := l.Configure(""); err != nil || l.Enabled() {
		t.Fatalf("empty destination should disable the logger (%v)", err)
	}
}
