package recorder

import (
	"fmt"
	"os"
	"sync"

	"github.com/icza/mjpeg"
)

// FrameSink persists encoded JPEG frames into a video container.
// Implementations must tolerate Close after a failed write.
type FrameSink interface {
	// WriteFrame appends one JPEG-encoded frame.
	WriteFrame(jpegFrame []byte) error

	// Close finalizes the container and releases the underlying file.
	Close() error
}

// SinkFactory creates a FrameSink for a working video path. Used for test
// injection; a nil factory on the controller config selects NewAVISink.
type SinkFactory func(path string, width, height int, fps float64) (FrameSink, error)

// NewAVISink opens a motion-JPEG AVI container at the given dimensions and
// nominal frame rate. The container's rate is the target rate, not the
// achieved one; per-frame wall-clock times live in the timestamp index.
func NewAVISink(path string, width, height int, fps float64) (FrameSink, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, fmt.Errorf("open avi writer %s: %w", path, err)
	}
	return &aviSink{w: aw}, nil
}

type aviSink struct {
	w mjpeg.AviWriter
}

func (s *aviSink) WriteFrame(jpegFrame []byte) error {
	return s.w.AddFrame(jpegFrame)
}

func (s *aviSink) Close() error {
	return s.w.Close()
}

// Verify aviSink implements FrameSink.
var _ FrameSink = (*aviSink)(nil)

// StubSink is a file-backed test sink: it creates a real file at the working
// path (so rename/delete finalization is observable) and records write
// statistics for assertions.
type StubSink struct {
	mu sync.Mutex

	// Path is the working path the sink was opened at.
	Path string
	// FramesWritten is the number of successful WriteFrame calls.
	FramesWritten int
	// BytesWritten is the total frame bytes accepted.
	BytesWritten int64
	// Closed indicates whether Close was called.
	Closed bool
	// ErrorOnWrite, if non-nil, is returned by WriteFrame.
	ErrorOnWrite error

	f *os.File
}

// NewStubSink creates a stub sink backed by a real file at path.
func NewStubSink(path string) (*StubSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &StubSink{Path: path, f: f}, nil
}

// WriteFrame records the frame and writes its bytes through to the file.
func (s *StubSink) WriteFrame(jpegFrame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	if _, err := s.f.Write(jpegFrame); err != nil {
		return err
	}
	s.FramesWritten++
	s.BytesWritten += int64(len(jpegFrame))
	return nil
}

// Close marks the sink closed and closes the backing file.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return s.f.Close()
}

// Stats returns a snapshot of stub statistics.
func (s *StubSink) Stats() (frames int, bytes int64, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FramesWritten, s.BytesWritten, s.Closed
}

// Verify StubSink implements FrameSink.
var _ FrameSink = (*StubSink)(nil)
