package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/biotel-io/camsync/types"
)

func testSession() *types.SessionMeta {
	return &types.SessionMeta{SessionID: "sess-1", Subject: "p01", StartedAt: time.Now()}
}

func TestLogger_IncludesSessionContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(testSession()).WithOutput(&buf)

	logger.Info("recording started", map[string]any{"fps": 30})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id: got %v", entry["session_id"])
	}
	if entry["subject"] != "p01" {
		t.Errorf("subject: got %v", entry["subject"])
	}
	if entry["message"] != "recording started" {
		t.Errorf("message: got %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level: got %v", entry["level"])
	}
}

func TestLogger_EmptySubjectOmitted(t *testing.T) {
	var buf bytes.Buffer
	session := &types.SessionMeta{SessionID: "sess-2", StartedAt: time.Now()}
	logger := NewLogger(session).WithOutput(&buf)

	logger.Warn("camera not available", nil)

	if strings.Contains(buf.String(), "subject") {
		t.Errorf("empty subject should be omitted: %s", buf.String())
	}
}

func TestSugaredLogger_Printf(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(testSession()).WithOutput(&buf)

	logger.Sugar().Infof("saved %d frames", 90)

	if !strings.Contains(buf.String(), "saved 90 frames") {
		t.Errorf("formatted message missing: %s", buf.String())
	}
}
