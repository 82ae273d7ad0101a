package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Default ffmpeg capture parameters.
const (
	DefaultBinary      = "ffmpeg"
	DefaultInputFormat = "v4l2"
	DefaultWidth       = 640
	DefaultHeight      = 480
	DefaultFPS         = 30
)

// JPEG stream markers. ffmpeg's image2pipe MJPEG output is a plain
// concatenation of JPEG images; frames are recovered by scanning for
// start-of-image and end-of-image markers.
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegConfig configures an ffmpeg-backed webcam handle.
type FFmpegConfig struct {
	// Path is the capture device path (e.g. /dev/video0). Required.
	Path string
	// Width and Height are the requested frame dimensions.
	Width  int
	Height int
	// FPS is the requested device frame rate.
	FPS int
	// InputFormat is the ffmpeg input format (default v4l2).
	InputFormat string
	// Binary is the ffmpeg executable (default "ffmpeg").
	Binary string
}

func (c *FFmpegConfig) applyDefaults() {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.InputFormat == "" {
		c.InputFormat = DefaultInputFormat
	}
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
}

// FFmpegHandle reads an MJPEG stream from an ffmpeg child process and keeps
// the newest complete frame in a one-slot buffer. ReadFrame never blocks on
// the child; a slow or stalled stream surfaces as misses.
type FFmpegHandle struct {
	cfg    FFmpegConfig
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	latest  []byte
	seq     uint64
	readSeq uint64
	open    bool
}

// OpenFFmpeg starts an ffmpeg capture process for the configured device and
// returns an open Handle. The caller owns the handle until it is given to the
// recorder.
func OpenFFmpeg(ctx context.Context, cfg FFmpegConfig) (*FFmpegHandle, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ffmpeg handle requires a device path")
	}
	cfg.applyDefaults()

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, cfg.Binary,
		"-f", cfg.InputFormat,
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", fmt.Sprintf("%d", cfg.FPS),
		"-i", cfg.Path,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg for %s: %w", cfg.Path, err)
	}

	h := &FFmpegHandle{
		cfg:    cfg,
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
		open:   true,
	}
	go h.consume(stdout)

	return h, nil
}

// consume splits the MJPEG byte stream into frames and stores the newest one.
func (h *FFmpegHandle) consume(r io.Reader) {
	defer close(h.done)

	buf := make([]byte, 256*1024)
	var acc bytes.Buffer

	for {
		n, err := r.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])

			consumed := 0
			data := acc.Bytes()
			for {
				frame, adv, ok := nextJPEG(data)
				if adv == 0 && !ok {
					break
				}
				data = data[adv:]
				consumed += adv
				if ok {
					h.store(frame)
				} else {
					break
				}
			}
			acc.Next(consumed)
		}
		if err != nil {
			h.mu.Lock()
			h.open = false
			h.mu.Unlock()
			return
		}
	}
}

// nextJPEG scans data for one complete JPEG image. It returns the extracted
// frame (copied), the number of bytes safe to discard from the front of data,
// and whether a complete frame was found. Garbage before the start-of-image
// marker is counted as consumed even when no complete frame is present yet.
func nextJPEG(data []byte) (frame []byte, consumed int, ok bool) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		// No marker at all; everything but the last byte is garbage
		// (the last byte could be the first half of a marker).
		if len(data) > 1 {
			return nil, len(data) - 1, false
		}
		return nil, 0, false
	}

	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		// Partial frame: discard leading garbage, keep the rest.
		return nil, start, false
	}

	frameEnd := start + 2 + end + 2
	frame = make([]byte, frameEnd-start)
	copy(frame, data[start:frameEnd])
	return frame, frameEnd, true
}

func (h *FFmpegHandle) store(frame []byte) {
	h.mu.Lock()
	h.latest = frame
	h.seq++
	h.mu.Unlock()
}

// IsOpen reports whether the ffmpeg process is still producing frames.
func (h *FFmpegHandle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// ReadFrame returns the newest frame not yet seen by the caller.
// Returns (nil, false) when no new frame has arrived since the last read.
func (h *FFmpegHandle) ReadFrame() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.open || h.seq == h.readSeq {
		return nil, false
	}
	h.readSeq = h.seq
	return h.latest, true
}

// Release stops the ffmpeg process and reaps it. Idempotent.
func (h *FFmpegHandle) Release() error {
	h.mu.Lock()
	wasOpen := h.open
	h.open = false
	h.mu.Unlock()

	h.cancel()
	if wasOpen {
		<-h.done
	}
	// Wait errors are expected here: the process was killed via context cancel.
	_ = h.cmd.Wait()
	return nil
}

// Width returns the configured frame width.
func (h *FFmpegHandle) Width() int { return h.cfg.Width }

// Height returns the configured frame height.
func (h *FFmpegHandle) Height() int { return h.cfg.Height }

// Verify FFmpegHandle implements the device contract.
var _ Handle = (*FFmpegHandle)(nil)
