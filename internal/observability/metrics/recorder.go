package metrics

// Recorder is the minimal surface components need for operation metrics.
// Tests pass a no-op or counting implementation instead of a registry.
type Recorder interface {
	// RecordOperation counts an operation with its status ("success", "error")
	RecordOperation(operation, status string)

	// RecordDuration records how long an operation took in seconds
	RecordDuration(operation string, seconds float64)

	// RecordError counts a failure with a coarse error type
	RecordError(operation, errorType string)
}

// NoopRecorder discards everything
type NoopRecorder struct{}

func (NoopRecorder) RecordOperation(string, string) {}
func (NoopRecorder) RecordDuration(string, float64) {}
func (NoopRecorder) RecordError(string, string) {}

var _ Recorder = NoopRecorder{}
