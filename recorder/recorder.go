// Package recorder implements the capture controller: a background worker
// that synchronizes video frame acquisition with a physiological recording
// session.
//
// The controller owns a four-state machine (Idle, Recording, Stopping,
// Terminated) driven by observer-set request flags. While recording it paces
// a read/write loop at a target frame rate, appends per-frame wall-clock
// timestamps to a CSV index, and writes frames to a motion-JPEG sink. On a
// clean stop the working files are renamed to caller-supplied final paths;
// on a forced stop they are deleted best-effort after a bounded grace delay.
//
// Thread model: the observer opens the device handle on whatever execution
// context its backend requires and hands it over before requesting a start;
// after handoff only the controller goroutine reads frames or releases the
// handle. The begin/end flags are the only state mutated from outside the
// worker, and no lock is held across any of the worker's sleeps.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/biotel-io/camsync/device"
	"github.com/biotel-io/camsync/iox"
	"github.com/biotel-io/camsync/log"
	"github.com/biotel-io/camsync/metrics"
	"github.com/biotel-io/camsync/types"
)

// State is the controller's lifecycle state.
type State string

// Controller states.
const (
	// StateIdle means no session is active; the worker polls for a begin request.
	StateIdle State = "idle"
	// StateRecording means the capture loop is running.
	StateRecording State = "recording"
	// StateStopping means an end request was observed and finalization is in progress.
	StateStopping State = "stopping"
	// StateTerminated means the worker was force-stopped and cannot be restarted.
	StateTerminated State = "terminated"
)

// Defaults for Config.
const (
	DefaultTargetFPS    = 30.0
	DefaultIdleInterval = 100 * time.Millisecond
	DefaultGraceDelay   = time.Second
	DefaultStatusBuffer = 8
)

// workingSuffix marks in-progress artifacts; finalization renames them away.
const workingSuffix = "_capture_tmp"

// Config configures a Controller.
type Config struct {
	// TargetFPS is the capture loop's target frame rate (default 30).
	TargetFPS float64
	// WorkDir is where working artifacts are written (default ".").
	WorkDir string
	// IdleInterval is the poll interval while no session is active (default 100ms).
	IdleInterval time.Duration
	// GraceDelay bounds how long Terminate waits for an in-flight iteration
	// before force-releasing the device (default 1s).
	GraceDelay time.Duration
	// StatusBuffer is the status channel capacity (default 8). Emits drop
	// when the buffer is full; the channel never blocks the worker.
	StatusBuffer int
	// SinkFactory overrides video sink creation (for testing).
	// Nil selects the motion-JPEG AVI sink.
	SinkFactory SinkFactory
}

func (c *Config) applyDefaults() {
	if c.TargetFPS <= 0 {
		c.TargetFPS = DefaultTargetFPS
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = DefaultGraceDelay
	}
	if c.StatusBuffer <= 0 {
		c.StatusBuffer = DefaultStatusBuffer
	}
	if c.SinkFactory == nil {
		c.SinkFactory = NewAVISink
	}
}

// Controller is the capture/record state machine worker.
// Construct with New, hand over an opened device with SetDevice, then Start.
type Controller struct {
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector

	mu         sync.Mutex
	dev        device.Handle
	beginReq   bool
	endReq     bool
	finalVideo string
	finalIndex string
	workVideo  string
	workIndex  string
	state      State
	started    bool

	frames atomic.Uint64

	status   chan string
	stopCh   chan struct{}
	done     chan struct{}
	termOnce sync.Once
}

// New creates a Controller. logger must be non-nil; collector may be nil.
func New(cfg Config, logger *log.Logger, collector *metrics.Collector) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		state:     StateIdle,
		status:    make(chan string, cfg.StatusBuffer),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
}

// SetDevice hands an opened device handle to the controller. Must be called
// before the begin request; the caller must not read from the handle after
// handoff.
func (c *Controller) SetDevice(h device.Handle) {
	c.mu.Lock()
	c.dev = h
	c.mu.Unlock()
}

// SetFinalPaths supplies the destinations the working artifacts are renamed
// to on clean session end. Either may be empty, in which case that working
// artifact is discarded. Paths are consumed by the next session end and then
// cleared.
func (c *Controller) SetFinalPaths(videoPath, timestampsPath string) {
	c.mu.Lock()
	c.finalVideo = videoPath
	c.finalIndex = timestampsPath
	c.mu.Unlock()
}

// RequestStart asks the worker to begin a recording session. Observed within
// one loop tick; ignored unless the controller is idle when observed.
func (c *Controller) RequestStart() {
	c.mu.Lock()
	c.beginReq = true
	c.mu.Unlock()
}

// RequestStop asks the worker to end the current session cleanly and return
// to idle. Observed within one loop tick; a no-op when no session is active.
func (c *Controller) RequestStop() {
	c.mu.Lock()
	c.endReq = true
	c.mu.Unlock()
}

// Status returns the status channel. Subscribe before starting a session;
// events emitted with no reader and a full buffer are dropped, not replayed.
func (c *Controller) Status() <-chan string {
	return c.status
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FrameCount returns the number of frames captured in the current or most
// recent session.
func (c *Controller) FrameCount() uint64 {
	return c.frames.Load()
}

// Done is closed when the worker goroutine has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Terminate force-stops the worker. It signals the loop, waits up to the
// configured grace delay for an in-flight iteration to complete, releases the
// device if still held, and deletes any surviving working artifacts
// (best-effort; failures are swallowed). Terminal and idempotent.
func (c *Controller) Terminate() {
	c.termOnce.Do(func() {
		close(c.stopCh)

		c.mu.Lock()
		started := c.started
		c.mu.Unlock()

		if started {
			select {
			case <-c.done:
			case <-time.After(c.cfg.GraceDelay):
			}
		}

		c.mu.Lock()
		dev := c.dev
		c.dev = nil
		workVideo, workIndex := c.workVideo, c.workIndex
		c.workVideo, c.workIndex = "", ""
		c.state = StateTerminated
		c.mu.Unlock()

		if dev != nil && dev.IsOpen() {
			_ = dev.Release()
		}
		if workVideo != "" || workIndex != "" {
			c.collector.IncSessionAborted()
		}
		iox.RemoveIfExists(workVideo)
		iox.RemoveIfExists(workIndex)

		c.logger.Info("capture worker terminated", nil)
	})
}

// run is the worker loop: poll for a begin request, record, repeat.
func (c *Controller) run() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if !c.takeBeginRequest() {
			if !c.sleep(c.cfg.IdleInterval) {
				return
			}
			continue
		}

		c.record()
	}
}

// record runs one capture session from begin request to finalization.
func (c *Controller) record() {
	c.mu.Lock()
	dev := c.dev
	c.mu.Unlock()

	if dev == nil || !dev.IsOpen() {
		c.collector.IncDeviceUnavailable()
		c.logger.Warn("begin request with no open device", nil)
		c.emit("camera not available, video will not be recorded")
		return
	}

	sessionStart := time.Now()
	base := sessionStart.Format("20060102_150405") + workingSuffix
	workVideo := filepath.Join(c.cfg.WorkDir, base+".avi")
	workIndex := filepath.Join(c.cfg.WorkDir, base+"_timestamps.csv")

	sink, err := c.cfg.SinkFactory(workVideo, dev.Width(), dev.Height(), c.cfg.TargetFPS)
	if err != nil {
		c.logger.Error("open video sink failed", map[string]any{"error": err.Error(), "path": workVideo})
		iox.RemoveIfExists(workVideo)
		c.emit("camera not available, video will not be recorded")
		return
	}

	index, err := newIndexWriter(workIndex)
	if err != nil {
		c.logger.Error("open timestamp index failed", map[string]any{"error": err.Error(), "path": workIndex})
		iox.DiscardErr(sink.Close)
		iox.RemoveIfExists(workVideo)
		iox.RemoveIfExists(workIndex)
		c.emit("camera not available, video will not be recorded")
		return
	}

	c.mu.Lock()
	c.workVideo, c.workIndex = workVideo, workIndex
	c.state = StateRecording
	c.mu.Unlock()
	c.frames.Store(0)

	c.collector.IncSessionStarted()
	c.logger.Info("recording started", map[string]any{
		"video":  workVideo,
		"fps":    c.cfg.TargetFPS,
		"width":  dev.Width(),
		"height": dev.Height(),
	})
	c.emit("recording started")

	period := time.Duration(float64(time.Second) / c.cfg.TargetFPS)
	var frameNumber uint64
	forced := false

	for {
		iterStart := time.Now()

		frame, ok := dev.ReadFrame()
		if ok {
			rec := types.FrameRecord{FrameNumber: frameNumber, Timestamp: time.Now()}
			if err := index.Append(rec); err != nil {
				c.logger.Warn("timestamp row write failed", map[string]any{"error": err.Error()})
			}
			if err := sink.WriteFrame(frame); err != nil {
				c.logger.Warn("frame write failed", map[string]any{"error": err.Error()})
			}
			frameNumber++
			c.frames.Store(frameNumber)
			c.collector.IncFrameCaptured()
			c.collector.AddBytesWritten(int64(len(frame)))
		} else {
			// Transient miss: skip the write, keep the session alive.
			c.collector.IncFrameMissed()
		}

		if c.takeEndRequest() {
			break
		}
		select {
		case <-c.stopCh:
			forced = true
		default:
		}
		if forced {
			break
		}

		// Best-effort pacing: sleep the remainder of the period; an overrun
		// is not compensated on the next iteration.
		if remaining := period - time.Since(iterStart); remaining > 0 {
			if !c.sleep(remaining) {
				forced = true
				break
			}
		} else {
			c.collector.IncPacingOverrun()
		}
	}

	if forced {
		// Forced stop: flush what made it to the writers and leave device
		// release plus working-file cleanup to Terminate.
		iox.DiscardErr(index.Close)
		iox.DiscardErr(sink.Close)
		return
	}

	c.finalize(dev, sink, index, frameNumber)
}

// finalize ends a session cleanly: release the device, close both writers,
// move working artifacts to their final paths (or discard them), and report.
func (c *Controller) finalize(dev device.Handle, sink FrameSink, index *indexWriter, frameCount uint64) {
	c.mu.Lock()
	c.state = StateStopping
	finalVideo, finalIndex := c.finalVideo, c.finalIndex
	c.finalVideo, c.finalIndex = "", ""
	workVideo, workIndex := c.workVideo, c.workIndex
	c.workVideo, c.workIndex = "", ""
	c.dev = nil
	c.mu.Unlock()

	_ = dev.Release()

	if err := sink.Close(); err != nil {
		c.logger.Warn("video sink close failed", map[string]any{"error": err.Error()})
	}
	if err := index.Close(); err != nil {
		c.logger.Warn("timestamp index close failed", map[string]any{"error": err.Error()})
	}

	moveOrDiscard(workVideo, finalVideo, c.logger)
	moveOrDiscard(workIndex, finalIndex, c.logger)

	if finalVideo != "" || finalIndex != "" {
		c.collector.IncSessionSaved()
	} else {
		c.collector.IncSessionDiscarded()
	}

	c.logger.Info("recording finished", map[string]any{
		"frames": frameCount,
		"video":  finalVideo,
	})
	c.emit(fmt.Sprintf("recording saved (%d frames)", frameCount))

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

// moveOrDiscard renames a working artifact to its final path, or removes it
// when no final path was supplied. Rename failures are logged and swallowed;
// finalization never fails the worker.
func moveOrDiscard(workPath, finalPath string, logger *log.Logger) {
	if workPath == "" {
		return
	}
	if finalPath == "" {
		iox.RemoveIfExists(workPath)
		return
	}
	if err := os.Rename(workPath, finalPath); err != nil {
		logger.Warn("artifact finalization failed", map[string]any{
			"error": err.Error(),
			"from":  workPath,
			"to":    finalPath,
		})
	}
}

// emit sends a status string without ever blocking the worker.
func (c *Controller) emit(msg string) {
	select {
	case c.status <- msg:
	default:
	}
}

// sleep waits for d or until termination. Returns false when terminated.
func (c *Controller) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-c.stopCh:
		return false
	case <-t.C:
		return true
	}
}

func (c *Controller) takeBeginRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.beginReq {
		return false
	}
	c.beginReq = false
	return true
}

func (c *Controller) takeEndRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endReq {
		return false
	}
	c.endReq = false
	return true
}
