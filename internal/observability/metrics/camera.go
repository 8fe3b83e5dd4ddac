package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// CameraMetrics tracks capture devices owned by the camera pool
type CameraMetrics struct {
	ActiveCameras  prometheus.Gauge
	Consumers      *prometheus.GaugeVec
	FramesCaptured *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	OpenErrors     *prometheus.CounterVec
	ReadErrors     *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewCameraMetrics creates and registers the camera collectors
func NewCameraMetrics(registry *prometheus.Registry) (*CameraMetrics, error) {
	m := &CameraMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CameraMetrics) initMetrics() {
	m.ActiveCameras = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "omniface_camera_active",
		Help: "Number of cameras with a running capture loop",
	})
	m.Consumers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "omniface_camera_consumers",
		Help: "Number of sessions holding each camera",
	}, []string{"camera"})
	m.FramesCaptured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_camera_frames_captured_total",
		Help: "Frames read from each device",
	}, []string{"camera"})
	m.FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_camera_frames_dropped_total",
		Help: "Frames overwritten before a consumer read them",
	}, []string{"camera"})
	m.OpenErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_camera_open_errors_total",
		Help: "Failed device opens",
	}, []string{"camera"})
	m.ReadErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_camera_read_errors_total",
		Help: "Failed or empty frame grabs",
	}, []string{"camera"})

	m.collectors = []prometheus.Collector{
		m.ActiveCameras, m.Consumers, m.FramesCaptured, m.FramesDropped, m.OpenErrors, m.ReadErrors,
	}
}

func cameraLabel(id int) string { return strconv.Itoa(id) }

// SetActive records how many capture loops run
func (m *CameraMetrics) SetActive(n int) {
	if m != nil {
		m.ActiveCameras.Set(float64(n))
	}
}

// SetConsumers records the refcount of one camera
func (m *CameraMetrics) SetConsumers(id, n int) {
	if m != nil {
		m.Consumers.WithLabelValues(cameraLabel(id)).Set(float64(n))
	}
}

func (m *CameraMetrics) FrameCaptured(id int) {
	if m != nil {
		m.FramesCaptured.WithLabelValues(cameraLabel(id)).Inc()
	}
}

func (m *CameraMetrics) FrameDropped(id int) {
	if m != nil {
		m.FramesDropped.WithLabelValues(cameraLabel(id)).Inc()
	}
}

func (m *CameraMetrics) OpenFailed(id int) {
	if m != nil {
		m.OpenErrors.WithLabelValues(cameraLabel(id)).Inc()
	}
}

func (m *CameraMetrics) ReadFailed(id int) {
	if m != nil {
		m.ReadErrors.WithLabelValues(cameraLabel(id)).Inc()
	}
}

// Describe implements the Collector interface
func (m *CameraMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *CameraMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
