// Package adapter defines the session event publishing boundary.
//
// Adapters notify downstream systems when a recording session has been
// finalized. The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import "context"

// SessionSavedEvent is the payload published when a recording session ends.
type SessionSavedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "session_saved"
	SessionID       string `json:"session_id"`
	Subject         string `json:"subject,omitempty"`
	Outcome         string `json:"outcome"` // saved, discarded, aborted
	FrameCount      int64  `json:"frame_count"`
	VideoPath       string `json:"video_path,omitempty"`
	TimestampsPath  string `json:"timestamps_path,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes session events to a downstream system.
// Implementations must be safe for single-use per session.
type Adapter interface {
	// Publish sends a session event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionSavedEvent) error

	// Close releases adapter resources.
	Close() error
}
