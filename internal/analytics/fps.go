package analytics

import "time"

// DefaultFPSSamples is how many readings the meter averages
const DefaultFPSSamples = 10

// FPSMeter smooths frames/elapsed readings over the last few samples
type FPSMeter struct {
	start   time.Time
	frames  int
	samples []float64
	limit   int
}

// NewFPSMeter starts a meter at start; samples <= 0 uses DefaultFPSSamples
func NewFPSMeter(start time.Time, samples int) *FPSMeter {
	if samples <= 0 {
		samples = DefaultFPSSamples
	}
	return &FPSMeter{start: start, limit: samples, samples: make([]float64, 0, samples)}
}

// Tick counts one delivered frame at now and returns the smoothed rate
func (m *FPSMeter) Tick(now time.Time) float64 {
	m.frames++
	elapsed := now.Sub(m.start).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-5
	}

	if len(m.samples) == m.limit {
		copy(m.samples, m.samples[1:])
		m.samples = m.samples[:m.limit-1]
	}
	m.samples = append(m.samples, float64(m.frames)/elapsed)

	var sum float64
	for _, v := range m.samples {
		sum += v
	}
	return sum / float64(len(m.samples))
}
