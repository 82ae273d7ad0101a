// Package types defines core domain types for the camsync recorder.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionMeta contains capture session identity metadata.
// A session spans one begin-request to one end-request of the recorder.
type SessionMeta struct {
	// SessionID is the canonical session identifier. Must be non-empty.
	SessionID string
	// Subject is the participant or rig label. Optional.
	Subject string
	// StartedAt is the wall-clock session start. Zero until the recorder
	// enters the recording state.
	StartedAt time.Time
}

// NewSessionMeta creates session metadata with a generated session ID.
func NewSessionMeta(subject string) *SessionMeta {
	return &SessionMeta{
		SessionID: uuid.NewString(),
		Subject:   subject,
	}
}

// Validate checks session identity rules.
func (s *SessionMeta) Validate() error {
	if s.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	return nil
}

// SessionOutcome represents how a capture session ended.
type SessionOutcome string

const (
	// OutcomeSaved indicates a clean stop with artifacts finalized.
	OutcomeSaved SessionOutcome = "saved"
	// OutcomeDiscarded indicates a clean stop with no final paths supplied.
	OutcomeDiscarded SessionOutcome = "discarded"
	// OutcomeAborted indicates a forced stop; working artifacts were deleted.
	OutcomeAborted SessionOutcome = "aborted"
)

// FrameRecord is one row of the timestamp index: a frame number and the
// wall-clock instant the frame was read from the device. Frame numbers are
// contiguous from 0; timestamps are the ground truth for downstream
// synchronization, independent of the nominal capture schedule.
type FrameRecord struct {
	FrameNumber uint64
	Timestamp   time.Time
}

// String renders the record the way it appears in the index file.
func (r FrameRecord) String() string {
	return fmt.Sprintf("%d,%s", r.FrameNumber, r.Timestamp.Format(time.RFC3339Nano))
}
