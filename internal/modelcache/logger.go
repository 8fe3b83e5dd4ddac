package modelcache

import "github.com/omniface/omniface-go/internal/logger"

// GetLogger returns the modelcache module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("modelcache")
}
