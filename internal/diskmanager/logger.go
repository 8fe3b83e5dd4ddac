package diskmanager

import "github.com/omniface/omniface-go/internal/logger"

// GetLogger returns the diskmanager logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("diskmanager")
}
