package camera

import "github.com/omniface/omniface-go/internal/logger"

// GetLogger returns the camera module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("camera")
}
