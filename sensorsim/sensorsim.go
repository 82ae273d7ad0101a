// Package sensorsim generates a synthetic physiological signal stream for
// development rigs without acquisition hardware.
//
// Each channel is a sine wave around a baseline. Samples are emitted as CSV
// lines at a fixed sample rate, matching the wire format of the serial
// acquisition boards the recorder is normally paired with.
package sensorsim

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/biotel-io/camsync/iox"
	"github.com/biotel-io/camsync/log"
)

// DefaultSampleRate is the sample rate used when none is configured.
const DefaultSampleRate = 250.0

// Channel is one synthetic signal channel.
type Channel struct {
	Name      string
	Baseline  float64
	Amplitude float64
	FreqHz    float64
}

// Value returns the channel's sample value at the given elapsed time.
func (c Channel) Value(elapsed time.Duration) float64 {
	t := elapsed.Seconds()
	return c.Baseline + c.Amplitude*math.Sin(2*math.Pi*c.FreqHz*t)
}

// Config configures a signal generator.
type Config struct {
	// SampleRate is samples per second (default 250).
	SampleRate float64
	// Channels are the signal channels, in wire order.
	Channels []Channel
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
}

// Generator produces paced CSV sample lines.
type Generator struct {
	cfg Config
}

// NewGenerator creates a Generator. Requires at least one channel.
func NewGenerator(cfg Config) (*Generator, error) {
	cfg.applyDefaults()
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("sensorsim: at least one channel is required")
	}
	return &Generator{cfg: cfg}, nil
}

// SampleLine renders one CSV sample line for the given elapsed time,
// terminated with CRLF the way serial acquisition boards frame lines.
func (g *Generator) SampleLine(elapsed time.Duration) string {
	var b strings.Builder
	for i, ch := range g.cfg.Channels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(ch.Value(elapsed), 'f', 2, 64))
	}
	b.WriteString("\r\n")
	return b.String()
}

// Header renders the channel-name header line.
func (g *Generator) Header() string {
	names := make([]string, len(g.cfg.Channels))
	for i, ch := range g.cfg.Channels {
		names[i] = ch.Name
	}
	return strings.Join(names, ",") + "\r\n"
}

// Stream writes paced sample lines to w until the context is canceled or a
// write fails. Pacing is best-effort relative to the stream start so drift
// does not accumulate.
func (g *Generator) Stream(ctx context.Context, w io.Writer) error {
	period := time.Duration(float64(time.Second) / g.cfg.SampleRate)
	start := time.Now()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		line := g.SampleLine(time.Since(start))
		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("sensorsim: write sample: %w", err)
		}
	}
}

// Server streams generated samples to each TCP client that connects.
type Server struct {
	gen    *Generator
	logger *log.Logger
}

// NewServer creates a Server around a generator.
func NewServer(gen *Generator, logger *log.Logger) *Server {
	return &Server{gen: gen, logger: logger}
}

// ListenAndServe accepts TCP clients on addr and streams samples to each
// until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("sensorsim: listen %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		iox.DiscardClose(ln)
	}()

	s.logger.Info("sensor simulator listening", map[string]any{"addr": ln.Addr().String()})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sensorsim: accept: %w", err)
		}

		go func() {
			defer iox.DiscardClose(conn)
			s.logger.Info("client connected", map[string]any{"remote": conn.RemoteAddr().String()})
			if err := s.gen.Stream(ctx, conn); err != nil && ctx.Err() == nil {
				s.logger.Debug("client stream ended", map[string]any{"error": err.Error()})
			}
		}()
	}
}
