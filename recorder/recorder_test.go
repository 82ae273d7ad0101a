package recorder

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/biotel-io/camsync/device"
	"github.com/biotel-io/camsync/log"
	"github.com/biotel-io/camsync/metrics"
	"github.com/biotel-io/camsync/types"
)

func testLogger() *log.Logger {
	session := &types.SessionMeta{SessionID: "test-session", StartedAt: time.Now()}
	return log.NewLogger(session).WithOutput(io.Discard)
}

// fastConfig returns a controller config with tight timings so session tests
// finish in tens of milliseconds.
func fastConfig(dir string, sinks chan *StubSink) Config {
	return Config{
		TargetFPS:    250,
		WorkDir:      dir,
		IdleInterval: 2 * time.Millisecond,
		GraceDelay:   200 * time.Millisecond,
		SinkFactory: func(path string, width, height int, fps float64) (FrameSink, error) {
			s, err := NewStubSink(path)
			if err != nil {
				return nil, err
			}
			sinks <- s
			return s, nil
		},
	}
}

func waitStatus(t *testing.T, ch <-chan string, want string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			if strings.Contains(msg, want) {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status containing %q", want)
		}
	}
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("controller never reached state %q, stuck at %q", want, c.State())
}

func readIndex(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	return rows
}

func TestController_SessionSavedToFinalPaths(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 1)
	collector := metrics.NewCollector("s-1", "p01", "stub")
	c := New(fastConfig(dir, sinks), testLogger(), collector)
	defer c.Terminate()

	dev := device.NewStubHandle(640, 480, [][]byte{[]byte("frame")}).Loop()
	c.SetDevice(dev)

	finalVideo := filepath.Join(dir, "final.avi")
	finalIndex := filepath.Join(dir, "final_timestamps.csv")
	c.SetFinalPaths(finalVideo, finalIndex)

	c.Start()
	c.RequestStart()
	waitStatus(t, c.Status(), "recording started")

	time.Sleep(50 * time.Millisecond)
	c.RequestStop()
	msg := waitStatus(t, c.Status(), "recording saved")
	waitState(t, c, StateIdle)

	sink := <-sinks
	frames, _, closed := sink.Stats()
	if frames == 0 {
		t.Fatal("no frames reached the sink")
	}
	if !closed {
		t.Error("sink was not closed on clean stop")
	}
	if got := c.FrameCount(); got != uint64(frames) {
		t.Errorf("frame count: controller %d, sink %d", got, frames)
	}
	if !strings.Contains(msg, strconv.Itoa(frames)+" frames") {
		t.Errorf("status %q does not report %d frames", msg, frames)
	}

	if _, err := os.Stat(finalVideo); err != nil {
		t.Errorf("final video missing: %v", err)
	}
	if _, err := os.Stat(sink.Path); !os.IsNotExist(err) {
		t.Errorf("working video still present at %s", sink.Path)
	}

	rows := readIndex(t, finalIndex)
	if len(rows) != frames+1 {
		t.Fatalf("index rows: got %d, want %d (header + one per frame)", len(rows), frames+1)
	}
	if rows[0][0] != "frame_number" || rows[0][1] != "timestamp" {
		t.Errorf("unexpected header row: %v", rows[0])
	}
	var prev time.Time
	for i, row := range rows[1:] {
		if row[0] != strconv.Itoa(i) {
			t.Fatalf("row %d: frame number %q, want %d", i, row[0], i)
		}
		ts, err := time.Parse(time.RFC3339Nano, row[1])
		if err != nil {
			t.Fatalf("row %d: bad timestamp %q: %v", i, row[1], err)
		}
		if ts.Before(prev) {
			t.Fatalf("row %d: timestamp %v before previous %v", i, ts, prev)
		}
		prev = ts
	}

	if !dev.Released() {
		t.Error("device was not released on clean stop")
	}
	snap := collector.Snapshot()
	if snap.SessionsStarted != 1 || snap.SessionsSaved != 1 {
		t.Errorf("lifecycle counters: %+v", snap)
	}
}

func TestController_SessionDiscardedWithoutFinalPaths(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 1)
	collector := metrics.NewCollector("s-2", "", "stub")
	c := New(fastConfig(dir, sinks), testLogger(), collector)
	defer c.Terminate()

	c.SetDevice(device.NewStubHandle(320, 240, [][]byte{[]byte("f")}).Loop())
	c.Start()
	c.RequestStart()
	waitStatus(t, c.Status(), "recording started")

	time.Sleep(20 * time.Millisecond)
	c.RequestStop()
	waitStatus(t, c.Status(), "recording saved")
	waitState(t, c, StateIdle)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("working files survived a discard: %v", entries)
	}

	snap := collector.Snapshot()
	if snap.SessionsDiscarded != 1 {
		t.Errorf("sessions discarded: got %d, want 1", snap.SessionsDiscarded)
	}
	if snap.SessionsSaved != 0 {
		t.Errorf("sessions saved: got %d, want 0", snap.SessionsSaved)
	}
}

func TestController_DeviceUnavailable(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 1)
	collector := metrics.NewCollector("s-3", "", "stub")
	c := New(fastConfig(dir, sinks), testLogger(), collector)
	defer c.Terminate()

	dev := device.NewStubHandle(640, 480, nil)
	dev.SetClosed()
	c.SetDevice(dev)

	c.Start()
	c.RequestStart()
	waitStatus(t, c.Status(), "camera not available")

	if got := c.State(); got != StateIdle {
		t.Errorf("state after unavailable device: got %q, want %q", got, StateIdle)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("no files should be created without a device, found %v", entries)
	}
	if snap := collector.Snapshot(); snap.DeviceUnavailable != 1 {
		t.Errorf("device unavailable: got %d, want 1", snap.DeviceUnavailable)
	}
}

func TestController_NilDeviceRejectsStart(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 1)
	c := New(fastConfig(dir, sinks), testLogger(), nil)
	defer c.Terminate()

	c.Start()
	c.RequestStart()
	waitStatus(t, c.Status(), "camera not available")
}

func TestController_TerminateRemovesWorkingFiles(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 1)
	collector := metrics.NewCollector("s-4", "", "stub")
	c := New(fastConfig(dir, sinks), testLogger(), collector)

	dev := device.NewStubHandle(640, 480, [][]byte{[]byte("frame")}).Loop()
	c.SetDevice(dev)
	c.SetFinalPaths(filepath.Join(dir, "never.avi"), filepath.Join(dir, "never.csv"))

	c.Start()
	c.RequestStart()
	waitStatus(t, c.Status(), "recording started")
	sink := <-sinks

	if _, err := os.Stat(sink.Path); err != nil {
		t.Fatalf("working video should exist mid-session: %v", err)
	}

	c.Terminate()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after terminate")
	}

	if got := c.State(); got != StateTerminated {
		t.Errorf("state: got %q, want %q", got, StateTerminated)
	}
	if !dev.Released() {
		t.Error("device was not released on forced stop")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("working files survived a forced stop: %v", entries)
	}
	if snap := collector.Snapshot(); snap.SessionsAborted != 1 {
		t.Errorf("sessions aborted: got %d, want 1", snap.SessionsAborted)
	}

	// Terminal and idempotent.
	c.Terminate()
	if got := c.State(); got != StateTerminated {
		t.Errorf("state after second terminate: got %q, want %q", got, StateTerminated)
	}
}

func TestController_TransientMissesSkipRows(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 1)
	collector := metrics.NewCollector("s-5", "", "stub")
	c := New(fastConfig(dir, sinks), testLogger(), collector)
	defer c.Terminate()

	// Three real frames interleaved with misses; once the script runs dry
	// every read misses until the stop request lands.
	script := [][]byte{[]byte("a"), nil, []byte("b"), nil, []byte("c")}
	c.SetDevice(device.NewStubHandle(640, 480, script))

	finalIndex := filepath.Join(dir, "ts.csv")
	c.SetFinalPaths("", finalIndex)

	c.Start()
	c.RequestStart()
	waitStatus(t, c.Status(), "recording started")

	time.Sleep(60 * time.Millisecond)
	c.RequestStop()
	waitStatus(t, c.Status(), "3 frames")
	waitState(t, c, StateIdle)

	sink := <-sinks
	frames, _, _ := sink.Stats()
	if frames != 3 {
		t.Errorf("sink frames: got %d, want 3", frames)
	}

	rows := readIndex(t, finalIndex)
	if len(rows) != 4 {
		t.Fatalf("index rows: got %d, want 4", len(rows))
	}
	for i, row := range rows[1:] {
		if row[0] != strconv.Itoa(i) {
			t.Errorf("frame numbers must stay contiguous across misses: row %d is %q", i, row[0])
		}
	}

	if snap := collector.Snapshot(); snap.FramesMissed < 2 {
		t.Errorf("frames missed: got %d, want at least 2", snap.FramesMissed)
	}
}

func TestController_BackToBackSessions(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 2)
	c := New(fastConfig(dir, sinks), testLogger(), nil)
	defer c.Terminate()

	c.Start()

	for i := 0; i < 2; i++ {
		dev := device.NewStubHandle(640, 480, [][]byte{[]byte("f")}).Loop()
		c.SetDevice(dev)
		c.RequestStart()
		waitStatus(t, c.Status(), "recording started")
		time.Sleep(20 * time.Millisecond)
		c.RequestStop()
		waitStatus(t, c.Status(), "recording saved")
		waitState(t, c, StateIdle)

		if !dev.Released() {
			t.Fatalf("session %d: device not released", i)
		}
	}
}

func TestController_FinalPathsConsumedOnce(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 2)
	c := New(fastConfig(dir, sinks), testLogger(), nil)
	defer c.Terminate()

	c.Start()

	finalVideo := filepath.Join(dir, "once.avi")
	c.SetFinalPaths(finalVideo, "")

	// First session consumes the final paths.
	c.SetDevice(device.NewStubHandle(640, 480, [][]byte{[]byte("f")}).Loop())
	c.RequestStart()
	waitStatus(t, c.Status(), "recording started")
	time.Sleep(20 * time.Millisecond)
	c.RequestStop()
	waitStatus(t, c.Status(), "recording saved")
	waitState(t, c, StateIdle)

	info, err := os.Stat(finalVideo)
	if err != nil {
		t.Fatalf("final video missing after first session: %v", err)
	}
	firstMod := info.ModTime()

	// Second session has no final paths left and must discard, not overwrite.
	c.SetDevice(device.NewStubHandle(640, 480, [][]byte{[]byte("g")}).Loop())
	c.RequestStart()
	waitStatus(t, c.Status(), "recording started")
	time.Sleep(20 * time.Millisecond)
	c.RequestStop()
	waitStatus(t, c.Status(), "recording saved")
	waitState(t, c, StateIdle)

	info, err = os.Stat(finalVideo)
	if err != nil {
		t.Fatalf("final video from first session vanished: %v", err)
	}
	if !info.ModTime().Equal(firstMod) {
		t.Error("second session overwrote the first session's final video")
	}
}

func TestController_StatusNeverBlocksWorker(t *testing.T) {
	dir := t.TempDir()
	sinks := make(chan *StubSink, 4)
	cfg := fastConfig(dir, sinks)
	cfg.StatusBuffer = 1
	c := New(cfg, testLogger(), nil)
	defer c.Terminate()

	c.SetDevice(device.NewStubHandle(640, 480, [][]byte{[]byte("f")}).Loop())
	c.Start()

	// Nobody reads the status channel; the session must still complete.
	c.RequestStart()
	waitState(t, c, StateRecording)
	time.Sleep(20 * time.Millisecond)
	c.RequestStop()
	waitState(t, c, StateIdle)
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.TargetFPS != DefaultTargetFPS {
		t.Errorf("fps: got %v, want %v", cfg.TargetFPS, DefaultTargetFPS)
	}
	if cfg.WorkDir != "." {
		t.Errorf("workdir: got %q, want .", cfg.WorkDir)
	}
	if cfg.IdleInterval != DefaultIdleInterval {
		t.Errorf("idle interval: got %v", cfg.IdleInterval)
	}
	if cfg.GraceDelay != DefaultGraceDelay {
		t.Errorf("grace delay: got %v", cfg.GraceDelay)
	}
	if cfg.StatusBuffer != DefaultStatusBuffer {
		t.Errorf("status buffer: got %d", cfg.StatusBuffer)
	}
	if cfg.SinkFactory == nil {
		t.Error("sink factory not defaulted")
	}
}
