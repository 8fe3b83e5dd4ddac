package auth

import "github.com/omniface/omniface-go/internal/logger"

// GetLogger returns the auth package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("auth")
}
