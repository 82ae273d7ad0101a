package device

import "sync"

// StubHandle is a scripted Handle for tests and offline runs.
// It serves a fixed sequence of frames; a nil entry in the script models a
// transient read miss. Tracks release calls for assertions.
type StubHandle struct {
	mu       sync.Mutex
	width    int
	height   int
	script   [][]byte
	pos      int
	loop     bool
	closed   bool
	released bool
	releases int
}

// NewStubHandle creates an open stub serving the given frame script.
func NewStubHandle(width, height int, script [][]byte) *StubHandle {
	return &StubHandle{
		width:  width,
		height: height,
		script: script,
	}
}

// Loop makes the script repeat instead of running dry. Returns the stub for
// chaining in test setup.
func (s *StubHandle) Loop() *StubHandle {
	s.mu.Lock()
	s.loop = true
	s.mu.Unlock()
	return s
}

// SetClosed makes the stub report itself closed, simulating a device that
// was never opened or died under the caller.
func (s *StubHandle) SetClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// IsOpen implements Handle.
func (s *StubHandle) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.released
}

// ReadFrame implements Handle by serving the next scripted entry.
func (s *StubHandle) ReadFrame() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.released {
		return nil, false
	}
	if s.pos >= len(s.script) {
		if !s.loop || len(s.script) == 0 {
			return nil, false
		}
		s.pos = 0
	}

	frame := s.script[s.pos]
	s.pos++
	if frame == nil {
		return nil, false
	}
	return frame, true
}

// Release implements Handle. Safe to call more than once.
func (s *StubHandle) Release() error {
	s.mu.Lock()
	s.released = true
	s.releases++
	s.mu.Unlock()
	return nil
}

// Released reports whether Release has been called.
func (s *StubHandle) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// ReleaseCount returns the number of Release calls.
func (s *StubHandle) ReleaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// Width implements Handle.
func (s *StubHandle) Width() int { return s.width }

// Height implements Handle.
func (s *StubHandle) Height() int { return s.height }

// Verify StubHandle implements the device contract.
var _ Handle = (*StubHandle)(nil)
