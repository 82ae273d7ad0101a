package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/biotel-io/camsync/adapter"
	redisadapter "github.com/biotel-io/camsync/adapter/redis"
	"github.com/biotel-io/camsync/adapter/webhook"
	"github.com/biotel-io/camsync/archive"
	"github.com/biotel-io/camsync/cli/config"
	"github.com/biotel-io/camsync/cli/tui"
	"github.com/biotel-io/camsync/device"
	"github.com/biotel-io/camsync/iox"
	"github.com/biotel-io/camsync/log"
	"github.com/biotel-io/camsync/metrics"
	"github.com/biotel-io/camsync/recorder"
	"github.com/biotel-io/camsync/types"
)

// Exit codes for the record command.
const (
	exitSuccess      = 0
	exitNoDevice     = 1
	exitRuntimeError = 2
)

// RecordCommand returns the record command: the only command that touches a
// camera device.
func RecordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record a capture session synchronized with signal acquisition",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to camsync.yaml",
			},
			&cli.StringFlag{
				Name:  "subject",
				Usage: "Subject identifier for the session",
			},
			// Device flags
			&cli.StringFlag{
				Name:  "device",
				Usage: "Capture device path (default: first discovered /dev/video*)",
			},
			&cli.IntFlag{
				Name:  "width",
				Usage: "Frame width",
			},
			&cli.IntFlag{
				Name:  "height",
				Usage: "Frame height",
			},
			&cli.Float64Flag{
				Name:  "fps",
				Usage: "Target capture frame rate",
			},
			// Output flags
			&cli.StringFlag{
				Name:  "work-dir",
				Usage: "Directory for in-progress working files",
			},
			&cli.StringFlag{
				Name:  "video-out",
				Usage: "Final video path (empty: discard video on stop)",
			},
			&cli.StringFlag{
				Name:  "timestamps-out",
				Usage: "Final timestamp index path (empty: discard index on stop)",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Recording duration (0: record until interrupted)",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Drive the session interactively with a live TUI",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: recordAction,
	}
}

// recordChoice is the merged record configuration: camsync.yaml defaults
// overridden by CLI flags.
type recordChoice struct {
	subject        string
	devicePath     string
	width          int
	height         int
	fps            float64
	workDir        string
	videoOut       string
	timestampsOut  string
	duration       time.Duration
	idleInterval   time.Duration
	graceDelay     time.Duration
	statusBuffer   int
	adapterConfig  config.AdapterConfig
	archiveConfig  config.ArchiveConfig
	deviceSettings config.DeviceConfig
}

func mergeRecordChoice(c *cli.Context, cfg *config.Config) recordChoice {
	choice := recordChoice{
		subject:        c.String("subject"),
		devicePath:     cfg.Device.Path,
		width:          cfg.Device.Width,
		height:         cfg.Device.Height,
		fps:            cfg.Capture.FPS,
		workDir:        cfg.Output.WorkDir,
		videoOut:       cfg.Output.VideoPath,
		timestampsOut:  cfg.Output.TimestampsPath,
		idleInterval:   cfg.Capture.IdleInterval.Duration,
		graceDelay:     cfg.Capture.GraceDelay.Duration,
		statusBuffer:   cfg.Capture.StatusBuffer,
		adapterConfig:  cfg.Adapter,
		archiveConfig:  cfg.Archive,
		deviceSettings: cfg.Device,
		duration:       c.Duration("duration"),
	}

	if v := c.String("device"); v != "" {
		choice.devicePath = v
	}
	if v := c.Int("width"); v > 0 {
		choice.width = v
	}
	if v := c.Int("height"); v > 0 {
		choice.height = v
	}
	if v := c.Float64("fps"); v > 0 {
		choice.fps = v
	}
	if v := c.String("work-dir"); v != "" {
		choice.workDir = v
	}
	if v := c.String("video-out"); v != "" {
		choice.videoOut = v
	}
	if v := c.String("timestamps-out"); v != "" {
		choice.timestampsOut = v
	}

	return choice
}

func recordAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitRuntimeError)
		}
		cfg = loaded
	}
	choice := mergeRecordChoice(c, cfg)

	meta := types.NewSessionMeta(choice.subject)
	meta.StartedAt = time.Now()
	logger := log.NewLogger(meta)
	collector := metrics.NewCollector(meta.SessionID, choice.subject, choice.devicePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Device open failures are not fatal: the session proceeds and the
	// controller reports that no video will be recorded, matching rigs where
	// signal acquisition runs without a camera.
	dev := openDevice(ctx, choice, logger, collector)

	controller := recorder.New(recorder.Config{
		TargetFPS:    choice.fps,
		WorkDir:      choice.workDir,
		IdleInterval: choice.idleInterval,
		GraceDelay:   choice.graceDelay,
		StatusBuffer: choice.statusBuffer,
	}, logger, collector)
	defer controller.Terminate()

	if dev != nil {
		controller.SetDevice(dev)
	}
	controller.SetFinalPaths(choice.videoOut, choice.timestampsOut)
	controller.Start()

	startTime := time.Now()

	if c.Bool("tui") {
		if err := tui.RunSessionTUI(controller, collector, meta); err != nil {
			return cli.Exit(fmt.Sprintf("tui failed: %v", err), exitRuntimeError)
		}
		waitIdle(controller, choice.graceDelay+5*time.Second)
	} else {
		runHeadless(ctx, controller, choice, logger)
	}

	duration := time.Since(startTime)
	snapshot := collector.Snapshot()

	notifyAndArchive(ctx, meta, choice, snapshot, duration, logger)

	if !c.Bool("quiet") {
		printSessionResult(meta, choice, snapshot, duration)
	}

	if snapshot.DeviceUnavailable > 0 && snapshot.FramesCaptured == 0 {
		return cli.Exit("", exitNoDevice)
	}
	return cli.Exit("", exitSuccess)
}

// openDevice resolves the device path (discovering one when unset) and starts
// the capture process. Returns nil when no device could be opened.
func openDevice(ctx context.Context, choice recordChoice, logger *log.Logger, collector *metrics.Collector) device.Handle {
	path := choice.devicePath
	if path == "" {
		paths, err := device.ScanDevices()
		if err != nil || len(paths) == 0 {
			logger.Warn("no capture devices discovered", nil)
			return nil
		}
		path = paths[0]
	}

	dev, err := device.OpenFFmpeg(ctx, device.FFmpegConfig{
		Path:        path,
		Width:       choice.width,
		Height:      choice.height,
		FPS:         int(choice.fps),
		InputFormat: choice.deviceSettings.InputFormat,
		Binary:      choice.deviceSettings.FFmpegBin,
	})
	if err != nil {
		logger.Warn("cannot open capture device", map[string]any{
			"device": path,
			"error":  err.Error(),
		})
		return nil
	}

	logger.Info("capture device opened", map[string]any{"device": path})
	return dev
}

// runHeadless drives one session without the TUI: start immediately, stop on
// duration expiry or the first interrupt, force-terminate on the second.
func runHeadless(ctx context.Context, controller *recorder.Controller, choice recordChoice, logger *log.Logger) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Mirror status messages into the log until the worker exits.
	go func() {
		for {
			select {
			case msg := <-controller.Status():
				logger.Info(msg, nil)
			case <-controller.Done():
				return
			}
		}
	}()

	controller.RequestStart()

	var timeout <-chan time.Time
	if choice.duration > 0 {
		timeout = time.After(choice.duration)
	}

	select {
	case <-timeout:
		logger.Info("duration elapsed, stopping", nil)
	case <-sigCh:
		logger.Info("interrupt received, stopping", nil)
	case <-ctx.Done():
	}
	controller.RequestStop()

	// A second interrupt force-terminates instead of waiting for a clean stop.
	go func() {
		<-sigCh
		logger.Warn("second interrupt, force terminating", nil)
		controller.Terminate()
	}()

	waitIdle(controller, choice.graceDelay+5*time.Second)
}

// waitIdle polls until the controller has finished its session (or died).
func waitIdle(controller *recorder.Controller, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		switch controller.State() {
		case recorder.StateIdle, recorder.StateTerminated:
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// notifyAndArchive publishes the session event and uploads saved artifacts.
// Both are best-effort: local artifacts are already safe on disk.
func notifyAndArchive(ctx context.Context, meta *types.SessionMeta, choice recordChoice, snapshot metrics.Snapshot, duration time.Duration, logger *log.Logger) {
	event := buildSessionEvent(meta, choice, snapshot, duration)

	if a := buildAdapter(choice.adapterConfig, logger); a != nil {
		defer iox.DiscardClose(a)
		if err := a.Publish(ctx, event); err != nil {
			logger.Warn("session event publish failed", map[string]any{"error": err.Error()})
		}
	}

	if choice.archiveConfig.Bucket != "" && event.Outcome == string(types.OutcomeSaved) {
		uploader, err := archive.New(ctx, archive.Config{
			Bucket:       choice.archiveConfig.Bucket,
			Prefix:       choice.archiveConfig.Prefix,
			Region:       choice.archiveConfig.Region,
			Endpoint:     choice.archiveConfig.Endpoint,
			UsePathStyle: choice.archiveConfig.S3PathStyle,
		})
		if err != nil {
			logger.Warn("archive setup failed", map[string]any{"error": err.Error()})
			return
		}
		keys, err := uploader.UploadSession(ctx, meta, choice.videoOut, choice.timestampsOut)
		if err != nil {
			logger.Warn("archive upload failed", map[string]any{"error": err.Error()})
			return
		}
		logger.Info("session archived", map[string]any{"objects": len(keys)})
	}
}

// buildSessionEvent assembles the adapter payload from the session outcome.
func buildSessionEvent(meta *types.SessionMeta, choice recordChoice, snapshot metrics.Snapshot, duration time.Duration) *adapter.SessionSavedEvent {
	outcome := types.OutcomeDiscarded
	videoPath, timestampsPath := "", ""
	switch {
	case snapshot.SessionsAborted > 0:
		outcome = types.OutcomeAborted
	case snapshot.SessionsSaved > 0:
		outcome = types.OutcomeSaved
		videoPath = choice.videoOut
		timestampsPath = choice.timestampsOut
	}

	return &adapter.SessionSavedEvent{
		ContractVersion: types.Version,
		EventType:       "session_saved",
		SessionID:       meta.SessionID,
		Subject:         meta.Subject,
		Outcome:         string(outcome),
		FrameCount:      snapshot.FramesCaptured,
		VideoPath:       videoPath,
		TimestampsPath:  timestampsPath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationMs:      duration.Milliseconds(),
	}
}

// buildAdapter constructs the configured adapter, or nil when none is set.
func buildAdapter(cfg config.AdapterConfig, logger *log.Logger) adapter.Adapter {
	retries := -1
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case "":
		return nil
	case "webhook":
		wcfg := webhook.Config{URL: cfg.URL, Headers: cfg.Headers, Timeout: cfg.Timeout.Duration}
		if retries >= 0 {
			wcfg.Retries = retries
		} else {
			wcfg.Retries = webhook.DefaultRetries
		}
		a, err := webhook.New(wcfg)
		if err != nil {
			logger.Warn("webhook adapter disabled", map[string]any{"error": err.Error()})
			return nil
		}
		return a
	case "redis":
		rcfg := redisadapter.Config{URL: cfg.URL, Channel: cfg.Channel, Timeout: cfg.Timeout.Duration}
		if retries >= 0 {
			rcfg.Retries = retries
		} else {
			rcfg.Retries = redisadapter.DefaultRetries
		}
		a, err := redisadapter.New(rcfg)
		if err != nil {
			logger.Warn("redis adapter disabled", map[string]any{"error": err.Error()})
			return nil
		}
		return a
	default:
		logger.Warn("unknown adapter type", map[string]any{"type": cfg.Type})
		return nil
	}
}

func printSessionResult(meta *types.SessionMeta, choice recordChoice, snapshot metrics.Snapshot, duration time.Duration) {
	fmt.Printf("\nsession_id=%s, frames=%d, duration=%s\n",
		meta.SessionID,
		snapshot.FramesCaptured,
		duration.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Session Result ===\n")
	fmt.Printf("Session ID:   %s\n", meta.SessionID)
	if meta.Subject != "" {
		fmt.Printf("Subject:      %s\n", meta.Subject)
	}
	fmt.Printf("Frames:       %d\n", snapshot.FramesCaptured)
	fmt.Printf("Missed:       %d\n", snapshot.FramesMissed)
	fmt.Printf("Overruns:     %d\n", snapshot.PacingOverruns)
	fmt.Printf("Bytes:        %d\n", snapshot.BytesWritten)
	fmt.Printf("Duration:     %s\n", duration.Round(time.Millisecond))

	if snapshot.SessionsSaved > 0 {
		fmt.Printf("\n=== Artifacts ===\n")
		if choice.videoOut != "" {
			fmt.Printf("Video:        %s\n", choice.videoOut)
		}
		if choice.timestampsOut != "" {
			fmt.Printf("Timestamps:   %s\n", choice.timestampsOut)
		}
	}
}
