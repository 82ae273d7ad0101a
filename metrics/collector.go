// Package metrics provides capture-session metrics collection.
//
// The Collector accumulates counters while the recorder runs. It is a leaf
// package with no internal dependencies. All increment methods are nil-receiver
// safe so the recorder can run without a collector wired in.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of capture metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64
	SessionsSaved     int64
	SessionsDiscarded int64
	SessionsAborted   int64

	// Frame loop
	FramesCaptured int64
	FramesMissed   int64
	PacingOverruns int64
	BytesWritten   int64

	// Device
	DeviceUnavailable int64

	// Dimensions (informational, set at construction)
	SessionID string
	Subject   string
	Device    string
}

// Collector accumulates metrics for one recorder lifetime.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsSaved     int64
	sessionsDiscarded int64
	sessionsAborted   int64

	framesCaptured int64
	framesMissed   int64
	pacingOverruns int64
	bytesWritten   int64

	deviceUnavailable int64

	sessionID string
	subject   string
	device    string
}

// NewCollector creates a Collector with dimension labels.
// All dimensions are informational and may be empty.
func NewCollector(sessionID, subject, device string) *Collector {
	return &Collector{
		sessionID: sessionID,
		subject:   subject,
		device:    device,
	}
}

// --- Session lifecycle ---

// IncSessionStarted records a session entering the recording state.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsStarted++
	c.mu.Unlock()
}

// IncSessionSaved records a clean stop with artifacts finalized.
func (c *Collector) IncSessionSaved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsSaved++
	c.mu.Unlock()
}

// IncSessionDiscarded records a clean stop with no final paths supplied.
func (c *Collector) IncSessionDiscarded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsDiscarded++
	c.mu.Unlock()
}

// IncSessionAborted records a forced stop.
func (c *Collector) IncSessionAborted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsAborted++
	c.mu.Unlock()
}

// --- Frame loop ---

// IncFrameCaptured records one successfully read and persisted frame.
func (c *Collector) IncFrameCaptured() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesCaptured++
	c.mu.Unlock()
}

// IncFrameMissed records one transient read miss.
func (c *Collector) IncFrameMissed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesMissed++
	c.mu.Unlock()
}

// IncPacingOverrun records an iteration whose work exceeded the frame period.
func (c *Collector) IncPacingOverrun() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pacingOverruns++
	c.mu.Unlock()
}

// AddBytesWritten records frame bytes handed to the video sink.
func (c *Collector) AddBytesWritten(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesWritten += n
	c.mu.Unlock()
}

// --- Device ---

// IncDeviceUnavailable records a begin-request rejected because the device
// handle was absent or closed.
func (c *Collector) IncDeviceUnavailable() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.deviceUnavailable++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsSaved:     c.sessionsSaved,
		SessionsDiscarded: c.sessionsDiscarded,
		SessionsAborted:   c.sessionsAborted,

		FramesCaptured: c.framesCaptured,
		FramesMissed:   c.framesMissed,
		PacingOverruns: c.pacingOverruns,
		BytesWritten:   c.bytesWritten,

		DeviceUnavailable: c.deviceUnavailable,

		SessionID: c.sessionID,
		Subject:   c.subject,
		Device:    c.device,
	}
}
