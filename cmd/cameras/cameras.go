package cameras

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/conf"
)

// Command creates the command that lists local capture devices.
func Command(settings *conf.Settings) *cobra.Command {
	var probe int

	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "List the capture devices that can be streamed",
		Long:  "Probe device ids 0..n-1 and print those that open.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count := settings.Camera.ProbeCount
			if probe > 0 {
				count = probe
			}

			pool := camera.NewPool(
				camera.GocvOpener{Width: settings.Camera.Width, Height: settings.Camera.Height},
				camera.WithDeviceProbe(count, 0))
			defer pool.Close()

			devices, err := pool.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no cameras found in ids 0..%d\n", count-1)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, d := range devices {
				fmt.Fprintf(w, "%d\t%s\n", d.ID, d.Name)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&probe, "probe", "n", 0, "Number of device ids to probe (default: camera.probe_count)")

	return cmd
}
