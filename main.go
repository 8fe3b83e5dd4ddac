package main

import (
	"os"

	"github.com/omniface/omniface-go/cmd"
	"github.com/omniface/omniface-go/internal/buildinfo"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/logger"
)

// buildDate and version are set at build time with -ldflags
var (
	buildDate string
	version   string
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	if version == "" {
		version = "dev"
	}
	build := buildinfo.NewContext(version, buildDate, "")

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, build)

	err := rootCmd.Execute()

	// flush buffered log files before exit
	_ = logger.Global().Close()

	if err != nil {
		return 1
	}
	return 0
}
