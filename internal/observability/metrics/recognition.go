package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RecognitionMetrics covers inference workers, model loading and streaming sessions
type RecognitionMetrics struct {
	BatchSize         prometheus.Histogram
	StageDuration     *prometheus.HistogramVec
	FacesDetected     prometheus.Counter
	Matches           *prometheus.CounterVec
	FrameErrors       *prometheus.CounterVec
	QualityRejections *prometheus.CounterVec
	RecordsWritten    *prometheus.CounterVec
	RecordErrors      *prometheus.CounterVec
	ModelLoads        *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	ActiveWorkers     prometheus.Gauge
	FramesStreamed    prometheus.Counter

	collectors []prometheus.Collector
}

// NewRecognitionMetrics creates and registers the recognition collectors
func NewRecognitionMetrics(registry *prometheus.Registry) (*RecognitionMetrics, error) {
	m := &RecognitionMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RecognitionMetrics) initMetrics() {
	m.BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "omniface_inference_batch_size",
		Help:    "Number of frames processed per worker wakeup",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})
	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "omniface_inference_stage_duration_seconds",
		Help:    "Time spent per inference stage",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	}, []string{"stage"})
	m.FacesDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "omniface_faces_detected_total",
		Help: "Faces found by the detector",
	})
	m.Matches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_face_matches_total",
		Help: "Face match outcomes",
	}, []string{"result"}) // recognised, unknown
	m.FrameErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_frame_errors_total",
		Help: "Frames skipped by the session loop",
	}, []string{"reason"})
	m.QualityRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_quality_rejections_total",
		Help: "Faces rejected by the quality gate",
	}, []string{"reason"})
	m.RecordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_records_written_total",
		Help: "Attendance and exit records persisted",
	}, []string{"kind"})
	m.RecordErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_record_errors_total",
		Help: "Attendance and exit records lost to persistence failures",
	}, []string{"kind"})
	m.ModelLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "omniface_model_loads_total",
		Help: "Model cache lookups by outcome",
	}, []string{"result"}) // hit, load, reload, not_found, error
	m.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "omniface_sessions_active",
		Help: "Open recognition streams",
	})
	m.ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "omniface_inference_workers_active",
		Help: "Running per-tenant inference workers",
	})
	m.FramesStreamed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "omniface_frames_streamed_total",
		Help: "Annotated frames delivered to clients",
	})

	m.collectors = []prometheus.Collector{
		m.BatchSize, m.StageDuration, m.FacesDetected, m.Matches, m.FrameErrors,
		m.QualityRejections, m.RecordsWritten, m.RecordErrors, m.ModelLoads,
		m.ActiveSessions, m.ActiveWorkers, m.FramesStreamed,
	}
}

func (m *RecognitionMetrics) ObserveBatch(size int) {
	if m != nil {
		m.BatchSize.Observe(float64(size))
	}
}

func (m *RecognitionMetrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// ObserveFaces counts detections and match outcomes for one frame
func (m *RecognitionMetrics) ObserveFaces(recognised, unknown int) {
	if m == nil {
		return
	}
	m.FacesDetected.Add(float64(recognised + unknown))
	m.Matches.WithLabelValues("recognised").Add(float64(recognised))
	m.Matches.WithLabelValues("unknown").Add(float64(unknown))
}

func (m *RecognitionMetrics) FrameError(reason string) {
	if m != nil {
		m.FrameErrors.WithLabelValues(reason).Inc()
	}
}

func (m *RecognitionMetrics) QualityRejected(reason string) {
	if m != nil {
		m.QualityRejections.WithLabelValues(reason).Inc()
	}
}

func (m *RecognitionMetrics) RecordWritten(kind string) {
	if m != nil {
		m.RecordsWritten.WithLabelValues(kind).Inc()
	}
}

func (m *RecognitionMetrics) RecordFailed(kind string) {
	if m != nil {
		m.RecordErrors.WithLabelValues(kind).Inc()
	}
}

func (m *RecognitionMetrics) ModelLoad(result string) {
	if m != nil {
		m.ModelLoads.WithLabelValues(result).Inc()
	}
}

func (m *RecognitionMetrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *RecognitionMetrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

func (m *RecognitionMetrics) SetActiveWorkers(n int) {
	if m != nil {
		m.ActiveWorkers.Set(float64(n))
	}
}

func (m *RecognitionMetrics) FrameStreamed() {
	if m != nil {
		m.FramesStreamed.Inc()
	}
}

// Describe implements the Collector interface
func (m *RecognitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *RecognitionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
