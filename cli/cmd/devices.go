package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/biotel-io/camsync/cli/render"
	"github.com/biotel-io/camsync/device"
)

// DeviceEntry is one discovered capture device.
type DeviceEntry struct {
	Path string `json:"path"`
}

// DevicesCommand returns the devices command, which lists video capture
// devices visible to the host. Read-only; it never opens a device.
func DevicesCommand() *cli.Command {
	return &cli.Command{
		Name:   "devices",
		Usage:  "List available video capture devices",
		Flags:  ReadOnlyFlags(),
		Action: devicesAction,
	}
}

func devicesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	paths, err := device.ScanDevices()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	entries := make([]DeviceEntry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, DeviceEntry{Path: p})
	}

	return r.Render(entries)
}
