package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/castforge/castforge/internal/shell/device"
	"github.com/castforge/castforge/internal/shell/discovery"
	"github.com/spf13/cobra"
)

// deviceClient wires the device HTTP client from config.
func (a *app) deviceClient() *device.Client {
	return device.NewClient(device.ClientConfig{
		Port:        a.config.Device.Port,
		InfoTimeout: a.config.Device.InfoTimeout,
		OpTimeout:   a.config.Device.OpTimeout,
		StagingDir:  a.config.Device.StagingDir,
	}, a.logger)
}

// discoveryService wires the discovery service from config.
func (a *app) discoveryService() *discovery.Service {
	return discovery.NewService(discovery.Config{
		Port:          a.config.Device.Port,
		Window:        a.config.Discovery.Window,
		ProbeTimeout:  a.config.Discovery.ProbeTimeout,
		ChunkSize:     a.config.Discovery.ChunkSize,
		MulticastAddr: a.config.Discovery.MulticastAddr,
		SearchTarget:  a.config.Discovery.SearchTarget,
	}, a.deviceClient(), a.logger)
}

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Find controllable devices on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := a.discoveryService().Discover(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("no devices found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tMODEL\tSERIAL\tVERSION")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					d.Name, d.Address, d.Model, d.Serial, d.SoftwareVersion)
			}
			return w.Flush()
		},
	}
}
