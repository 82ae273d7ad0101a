package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/biotel-io/camsync/cli/config"
	"github.com/biotel-io/camsync/log"
	"github.com/biotel-io/camsync/sensorsim"
	"github.com/biotel-io/camsync/types"
)

// defaultSimChannels are the channels served when none are configured:
// a plausible pulse wave and a slow electrodermal drift.
var defaultSimChannels = []sensorsim.Channel{
	{Name: "ppg", Baseline: 512, Amplitude: 100, FreqHz: 1.2},
	{Name: "eda", Baseline: 300, Amplitude: 15, FreqHz: 0.05},
}

// SimulateCommand returns the simulate command: a TCP server that streams
// synthetic sensor samples for rigs without acquisition hardware.
func SimulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Serve a synthetic sensor signal stream over TCP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to camsync.yaml",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "TCP listen address",
				Value: "127.0.0.1:9002",
			},
			&cli.Float64Flag{
				Name:  "sample-rate",
				Usage: "Samples per second",
			},
		},
		Action: simulateAction,
	}
}

func simulateAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		cfg = loaded
	}

	listen := cfg.Simulator.Listen
	if v := c.String("listen"); c.IsSet("listen") || listen == "" {
		listen = v
	}
	sampleRate := cfg.Simulator.SampleRate
	if v := c.Float64("sample-rate"); v > 0 {
		sampleRate = v
	}

	channels := make([]sensorsim.Channel, 0, len(cfg.Simulator.Channels))
	for _, ch := range cfg.Simulator.Channels {
		channels = append(channels, sensorsim.Channel{
			Name:      ch.Name,
			Baseline:  ch.Baseline,
			Amplitude: ch.Amplitude,
			FreqHz:    ch.FreqHz,
		})
	}
	if len(channels) == 0 {
		channels = defaultSimChannels
	}

	gen, err := sensorsim.NewGenerator(sensorsim.Config{
		SampleRate: sampleRate,
		Channels:   channels,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	meta := types.NewSessionMeta("")
	logger := log.NewLogger(meta)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := sensorsim.NewServer(gen, logger)
	if err := srv.ListenAndServe(ctx, listen); err != nil && ctx.Err() == nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
