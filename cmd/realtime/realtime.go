package realtime

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/omniface/omniface-go/internal/analysis"
	"github.com/omniface/omniface-go/internal/buildinfo"
	"github.com/omniface/omniface-go/internal/conf"
)

// Command creates the command that runs the recognition service.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "realtime",
		Aliases: []string{"serve"},
		Short:   "Serve live face recognition streams",
		Long:    "Start the HTTP server and stream recognised camera frames to websocket clients until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeRecognition(settings, build)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Listen, "listen", viper.GetString("webserver.listen"), "Listen address of the HTTP server")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Serve Prometheus metrics on /metrics")
	cmd.Flags().StringVar(&settings.Captures.Root, "captures", viper.GetString("captures.root"), "Directory for recorded face crops")

	// Bind flags to the viper settings
	if err := viper.BindPFlag("webserver.listen", cmd.Flags().Lookup("listen")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("telemetry.enabled", cmd.Flags().Lookup("telemetry")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("captures.root", cmd.Flags().Lookup("captures")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
