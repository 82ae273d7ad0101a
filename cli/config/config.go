package config

import (
	"fmt"
	"time"
)

// Config represents a camsync.yaml configuration file.
// All values are optional and act as defaults for camsync record flags.
// CLI flags always override config values.
type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	Device    DeviceConfig    `yaml:"device"`
	Output    OutputConfig    `yaml:"output"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// CaptureConfig holds capture loop defaults from the config file.
type CaptureConfig struct {
	FPS          float64  `yaml:"fps"`
	IdleInterval Duration `yaml:"idle_interval"`
	GraceDelay   Duration `yaml:"grace_delay"`
	StatusBuffer int      `yaml:"status_buffer"`
}

// DeviceConfig holds camera device defaults from the config file.
type DeviceConfig struct {
	Path        string `yaml:"path"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	InputFormat string `yaml:"input_format"`
	FFmpegBin   string `yaml:"ffmpeg_bin"`
}

// OutputConfig holds artifact destination defaults from the config file.
type OutputConfig struct {
	WorkDir        string `yaml:"work_dir"`
	VideoPath      string `yaml:"video_path"`
	TimestampsPath string `yaml:"timestamps_path"`
}

// AdapterConfig holds session event adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ArchiveConfig holds S3 archive defaults from the config file.
type ArchiveConfig struct {
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	Prefix      string `yaml:"prefix"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// SimulatorConfig holds sensor simulator defaults from the config file.
type SimulatorConfig struct {
	Listen     string                   `yaml:"listen"`
	SampleRate float64                  `yaml:"sample_rate"`
	Channels   []SimulatorChannelConfig `yaml:"channels"`
}

// SimulatorChannelConfig is one synthetic signal channel definition.
type SimulatorChannelConfig struct {
	Name      string  `yaml:"name"`
	Baseline  float64 `yaml:"baseline"`
	Amplitude float64 `yaml:"amplitude"`
	FreqHz    float64 `yaml:"freq_hz"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
