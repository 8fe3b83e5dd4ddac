package observability

import "github.com/omniface/omniface-go/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("telemetry")
