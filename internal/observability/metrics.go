// Package observability wires the prometheus registry and Sentry error reporting.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omniface/omniface-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry    *prometheus.Registry
	Camera      *metrics.CameraMetrics
	Recognition *metrics.RecognitionMetrics
	Datastore   *metrics.DatastoreMetrics
	MQTT        *metrics.MQTTMetrics
}

// NewMetrics builds a private registry with every subsystem plus Go runtime collectors
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	cameraMetrics, err := metrics.NewCameraMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create camera metrics: %w", err)
	}

	recognitionMetrics, err := metrics.NewRecognitionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry:    registry,
		Camera:      cameraMetrics,
		Recognition: recognitionMetrics,
		Datastore:   datastoreMetrics,
		MQTT:        mqttMetrics,
	}, nil
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promErrorLogger routes promhttp errors into the module logger
type promErrorLogger struct{}

func (promErrorLogger) Println(v ...any) {
	log.Warn("metrics handler error: " + fmt.Sprint(v...))
}
