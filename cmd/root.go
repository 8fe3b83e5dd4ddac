// Package cmd holds the omniface command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/omniface/omniface-go/cmd/cameras"
	"github.com/omniface/omniface-go/cmd/index"
	"github.com/omniface/omniface-go/cmd/realtime"
	"github.com/omniface/omniface-go/cmd/token"
	"github.com/omniface/omniface-go/internal/buildinfo"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/logger"
)

// RootCommand creates and returns the root command. Subcommands share
// settings, which is filled from the config file before any of them runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "omniface",
		Short:         "OmniFace live face recognition and attendance",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings, &configFile); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		realtime.Command(settings, build),
		cameras.Command(settings),
		index.Command(settings),
		token.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings, configFile)
	}

	return rootCmd
}

// initialize loads the configuration, command line flags taking precedence,
// and installs the global logger.
func initialize(settings *conf.Settings, configFile string) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search the standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
