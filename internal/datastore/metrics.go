package datastore

import "github.com/omniface/omniface-go/internal/observability/metrics"

// Metrics is a type alias for the metrics.DatastoreMetrics
type Metrics = metrics.DatastoreMetrics
