package vision

import "github.com/omniface/omniface-go/internal/logger"

// GetLogger returns the vision module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("vision")
}
