// Package api provides the HTTP server infrastructure for omniface.
// The JSON endpoints and the recognition stream live in the v1 subpackage.
package api

import (
	"time"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultListen          = ":8000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port to bind

	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response; websockets clear it after the upgrade
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	BodyLimit string // Maximum request body size (e.g., "1M", "10M")

	MetricsEnabled bool // Serve /metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "1M",
	}
}

// ConfigFromSettings creates a Config from the webserver and telemetry settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.WebServer.Listen != "" {
		cfg.Listen = settings.WebServer.Listen
	}
	if len(settings.WebServer.CORS.Origins) > 0 {
		cfg.AllowedOrigins = settings.WebServer.CORS.Origins
	}
	if settings.WebServer.ReadTimeout > 0 {
		cfg.ReadTimeout = settings.WebServer.ReadTimeout
	}
	if settings.WebServer.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = settings.WebServer.ShutdownTimeout
	}
	cfg.MetricsEnabled = settings.Telemetry.Enabled
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return configError("listen address is required", "listen", c.Listen)
	}
	if c.ReadTimeout <= 0 {
		return configError("read timeout must be positive", "read_timeout", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		return configError("write timeout must be positive", "write_timeout", c.WriteTimeout)
	}
	return nil
}

func configError(msg, key string, value any) error {
	return errors.Newf("%s", msg).
		Component("api").
		Category(errors.CategoryConfiguration).
		Context(key, value).
		Build()
}
