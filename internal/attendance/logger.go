package attendance

import "github.com/omniface/omniface-go/internal/logger"

// GetLogger returns the attendance module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("attendance")
}
