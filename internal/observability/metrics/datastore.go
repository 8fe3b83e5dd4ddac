package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations
type DatastoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	queriesTotal      *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omniface_datastore_operations_total",
			Help: "Total number of datastore operations",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "omniface_datastore_operation_duration_seconds",
			Help:    "Time taken for datastore operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omniface_datastore_errors_total",
			Help: "Total number of datastore operation errors",
		},
		[]string{"operation", "error_type"},
	)

	// raw SQL statements as seen by the gorm logger
	m.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omniface_datastore_sql_statements_total",
			Help: "Total number of SQL statements by verb",
		},
		[]string{"verb", "status"},
	)

	m.queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "omniface_datastore_sql_statement_duration_seconds",
			Help:    "SQL statement execution time by verb",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"verb"},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.queriesTotal,
		m.queryDuration,
	}
}

// RecordOperation counts an operation with its status
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration records how long an operation took
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError counts a failed operation
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// ObserveStatement is a logger.QueryObserver fed by the gorm adapter
func (m *DatastoreMetrics) ObserveStatement(verb string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.queriesTotal.WithLabelValues(verb, status).Inc()
	m.queryDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
}

// ClassifyError maps a driver error onto a low-cardinality label
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "locked") || strings.Contains(msg, "busy"):
		return "locked"
	case strings.Contains(msg, "constraint") || strings.Contains(msg, "duplicate"):
		return "constraint"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "broken pipe"):
		return "connection"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	default:
		return "other"
	}
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

var _ Recorder = (*DatastoreMetrics)(nil)
