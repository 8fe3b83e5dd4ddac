package datastore

import "github.com/omniface/omniface-go/internal/logger"

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
