// Package device defines the video device-handle contract consumed by the
// recorder, plus concrete handles: an ffmpeg-backed webcam handle and a
// scripted stub for tests and offline runs.
//
// A Handle is opened and owned by the surrounding application. Once handed to
// the recorder, only the recorder goroutine reads frames from it or releases
// it; there are no concurrent readers.
package device

// Handle is an opened video-frame source.
//
// ReadFrame returns the next available frame as encoded JPEG bytes. The
// second return value is false when no frame is available this instant; a
// miss is transient, not an error. Implementations must not block longer than
// their own capture cadence.
type Handle interface {
	// IsOpen reports whether the underlying source is still open.
	IsOpen() bool

	// ReadFrame returns the newest unseen frame, or (nil, false) on a miss.
	ReadFrame() ([]byte, bool)

	// Release closes the underlying source. Safe to call more than once.
	Release() error

	// Width is the frame width in pixels, as reported by the source.
	Width() int

	// Height is the frame height in pixels, as reported by the source.
	Height() int
}
