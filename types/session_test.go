package types

import (
	"strings"
	"testing"
	"time"
)

func TestNewSessionMeta_GeneratesID(t *testing.T) {
	a := NewSessionMeta("p01")
	b := NewSessionMeta("p01")

	if a.SessionID == "" {
		t.Fatal("expected generated session ID")
	}
	if a.SessionID == b.SessionID {
		t.Errorf("expected unique session IDs, both were %s", a.SessionID)
	}
	if a.Subject != "p01" {
		t.Errorf("expected subject p01, got %s", a.Subject)
	}
}

func TestSessionMeta_Validate(t *testing.T) {
	if err := (&SessionMeta{SessionID: "s-1"}).Validate(); err != nil {
		t.Errorf("valid meta rejected: %v", err)
	}
	if err := (&SessionMeta{}).Validate(); err == nil {
		t.Error("expected error for empty session_id")
	}
}

func TestFrameRecord_String(t *testing.T) {
	ts := time.Date(2026, 2, 7, 12, 30, 0, 123456789, time.UTC)
	r := FrameRecord{FrameNumber: 42, Timestamp: ts}

	s := r.String()
	if !strings.HasPrefix(s, "42,2026-02-07T12:30:00.123456789") {
		t.Errorf("unexpected rendering: %s", s)
	}
}
