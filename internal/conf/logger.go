package conf

import "github.com/omniface/omniface-go/internal/logger"

// GetLogger is resolved on each call because settings load before SetGlobal runs.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
