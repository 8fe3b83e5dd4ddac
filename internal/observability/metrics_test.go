package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/buildinfo"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

func TestNewMetricsRegistersSubsystems(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Camera.FrameCaptured(0)
	m.Camera.FrameCaptured(0)
	m.Camera.FrameDropped(0)
	m.Recognition.ObserveFaces(2, 1)
	m.Recognition.RecordWritten("attendance")
	m.Datastore.RecordOperation(metrics.OpSaveAttendance, metrics.StatusSuccess)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Camera.FramesCaptured.WithLabelValues("0")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Camera.FramesDropped.WithLabelValues("0")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Recognition.FacesDetected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Recognition.Matches.WithLabelValues("unknown")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "omniface_camera_frames_captured_total")
	assert.Contains(t, body, "omniface_records_written_total")
	assert.Contains(t, body, "omniface_datastore_operations_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var cam *metrics.CameraMetrics
	var rec *metrics.RecognitionMetrics
	var mq *metrics.MQTTMetrics

	assert.NotPanics(t, func() {
		cam.FrameCaptured(1)
		cam.SetConsumers(1, 2)
		rec.ObserveBatch(3)
		rec.ObserveStage(metrics.StageDetect, time.Millisecond)
		rec.SessionOpened()
		mq.UpdateConnectionStatus(true)
		mq.StartPublishTimer().ObserveDuration()
	})
}

func TestInitSentryDisabled(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Telemetry.Enabled = true
	settings.Sentry.Enabled = false

	ok, err := InitSentry(settings, buildinfo.NewContext("test", "", ""))
	require.NoError(t, err)
	assert.False(t, ok)

	settings.Sentry.Enabled = true
	ok, err = InitSentry(settings, buildinfo.NewContext("test", "", ""))
	require.NoError(t, err)
	assert.False(t, ok, "missing dsn keeps reporting off")
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		Message:    "open ws://host/api?token=abc failed",
		ServerName: "edge-01",
		User:       sentry.User{ID: "u"},
		Exception:  []sentry.Exception{{Value: "person_name=Alice not found"}},
	}
	out := applyPrivacyFilters(event, nil)

	assert.Empty(t, out.ServerName)
	assert.Empty(t, out.User.ID)
	assert.NotContains(t, out.Message, "abc")
	assert.NotContains(t, out.Exception[0].Value, "Alice")
}
