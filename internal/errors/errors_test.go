package errors

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu       sync.Mutex
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, ee)
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuildReportsWhenReporterActive(t *testing.T) {
	rec := &recordingReporter{}
	SetTelemetryReporter(rec)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("failed to open camera 2")).
		Component("camera").
		Timing("open_device", 120*time.Millisecond).
		Build()

	require.Len(t, rec.reported, 1)
	assert.Same(t, ee, rec.reported[0])
	assert.Equal(t, CategoryCamera, ee.Category)
	assert.Equal(t, "open_device", ee.GetContext()["operation"])
	assert.Equal(t, int64(120), ee.GetContext()["duration_ms"])
}

func TestDetectCategoryFromComponent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CategoryDatabase, detectCategory(fmt.Errorf("duplicate row"), "datastore"))
	assert.Equal(t, CategoryInference, detectCategory(fmt.Errorf("invoke returned status 1"), "inference"))
	assert.Equal(t, CategoryAuth, detectCategory(fmt.Errorf("token expired"), "api"))
	assert.Equal(t, CategoryGeneric, detectCategory(fmt.Errorf("boom"), "somewhere"))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("no index for tenant 4")).
		Component("modelcache").
		Category(CategoryNotFound).
		Build()

	wrapped := fmt.Errorf("load: %w", ee)
	assert.True(t, IsNotFound(wrapped))
	assert.True(t, IsCategory(wrapped, CategoryNotFound))
	assert.False(t, IsCategory(wrapped, CategoryCamera))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))
}

func TestEnhancedErrorIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := New(fmt.Errorf("a")).Category(CategoryState).Build()
	b := New(fmt.Errorf("b")).Category(CategoryState).Build()
	c := New(fmt.Errorf("c")).Category(CategoryLimit).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	ee = New(fmt.Errorf("x")).Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, ee.GetPriority())
}

func TestBasicScrub(t *testing.T) {
	t.Parallel()

	out := basicScrub("dial ws://host:8080/api/v1/recognition/ws?token=abc&cam_id=0 failed")
	assert.Equal(t, "dial ws://host:8080/api/v1/recognition/ws?[REDACTED] failed", out)

	out = basicScrub("unknown label=alice_smith in tenant 3")
	assert.NotContains(t, out, "alice_smith")
	assert.Contains(t, out, "tenant 3")

	out = basicScrub("config: password=hunter2")
	assert.NotContains(t, out, "hunter2")
}

func TestGenerateErrorTitle(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("x")).
		Component("datastore").
		Category(CategoryDatabase).
		Context("operation", "save_exit").
		Build()

	assert.Equal(t, "Datastore Database Error Save Exit", generateErrorTitle(ee))
}
