package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, line)
	}
	return entry
}

func TestLogger_SessionFields(t *testing.T) {
	var buf bytes.Buffer
	session := &Session{ID: "sess-1", Role: "client", Peer: "ws://localhost:8081"}
	logger := NewLogger(session).WithOutput(&buf)

	logger.Info("registered", map[string]any{"state": "registered"})

	entry := decodeLine(t, &buf)
	if entry["message"] != "registered" {
		t.Errorf("message = %v, want registered", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["session_id"] != "sess-1" || entry["role"] != "client" {
		t.Errorf("session fields = %v/%v", entry["session_id"], entry["role"])
	}
	if entry["peer"] != "ws://localhost:8081" {
		t.Errorf("peer = %v", entry["peer"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["state"] != "registered" {
		t.Errorf("fields = %v", entry["fields"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(NewSession("relay")).WithOutput(&buf).With(map[string]any{"peer_id": "p-1"})
	logger.Warn("protocol violation", nil)

	entry := decodeLine(t, &buf)
	if entry["peer_id"] != "p-1" {
		t.Errorf("peer_id = %v, want p-1", entry["peer_id"])
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
	if id, _ := entry["session_id"].(string); !strings.HasPrefix(id, "sess-") {
		t.Errorf("session_id = %q, want sess- prefix", id)
	}
}

func TestLogger_Sugar(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(nil).WithOutput(&buf).Sugar().With("episode", 3).Infof("distance %.1f", 12.5)

	entry := decodeLine(t, &buf)
	if entry["message"] != "distance 12.5" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["episode"] != float64(3) {
		t.Errorf("episode = %v, want 3", entry["episode"])
	}
}

func TestNop(t *testing.T) {
	// Must not panic.
	Nop().Error("ignored", map[string]any{"k": 1})
}
