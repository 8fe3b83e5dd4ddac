package api

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gocv.io/x/gocv"

	"github.com/omniface/omniface-go/internal/api/auth"
	"github.com/omniface/omniface-go/internal/attendance"
	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/datastore"
	"github.com/omniface/omniface-go/internal/inference"
	"github.com/omniface/omniface-go/internal/modelcache"
	"github.com/omniface/omniface-go/internal/observability/metrics"
	"github.com/omniface/omniface-go/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

// MockDataStore is a testify mock of datastore.Interface
type MockDataStore struct {
	mock.Mock
}

func (m *MockDataStore) Open() error  { return m.Called().Error(0) }
func (m *MockDataStore) Close() error { return m.Called().Error(0) }

func (m *MockDataStore) SaveAttendance(ctx context.Context, rec *datastore.AttendanceRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockDataStore) SaveExit(ctx context.Context, rec *datastore.ExitRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockDataStore) UpsertPersonState(ctx context.Context, state *datastore.PersonState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *MockDataStore) GetDepartment(ctx context.Context, tenantID, id uint) (*datastore.Department, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datastore.Department), args.Error(1)
}

func (m *MockDataStore) FindPersonByLabel(ctx context.Context, tenantID uint, label string) (*datastore.Person, error) {
	args := m.Called(ctx, tenantID, label)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datastore.Person), args.Error(1)
}

func (m *MockDataStore) ListAttendance(ctx context.Context, tenantID uint, day *time.Time) ([]datastore.AttendanceRecord, error) {
	args := m.Called(ctx, tenantID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datastore.AttendanceRecord), args.Error(1)
}

func (m *MockDataStore) ListExits(ctx context.Context, tenantID uint, day *time.Time) ([]datastore.ExitRecord, error) {
	args := m.Called(ctx, tenantID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datastore.ExitRecord), args.Error(1)
}

func (m *MockDataStore) AttendedToday(ctx context.Context, tenantID uint, day time.Time) ([]string, error) {
	args := m.Called(ctx, tenantID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// grayDevice yields mid-gray 240x240 frames
type grayDevice struct{}

func (grayDevice) Read(dst *gocv.Mat) bool {
	time.Sleep(2 * time.Millisecond)
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 240, 240, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.CopyTo(dst)
	return true
}

func (grayDevice) Close() error { return nil }

type testOpener struct{ fail error }

func (o testOpener) Open(int) (camera.Device, error) {
	if o.fail != nil {
		return nil, o.fail
	}
	return grayDevice{}, nil
}

type oneFaceDetector struct{}

func (oneFaceDetector) Detect(gocv.Mat) ([]inference.Detection, error) {
	return []inference.Detection{{Box: image.Rect(20, 20, 220, 220), Score: 0.99}}, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(gocv.Mat, image.Rectangle) ([]float32, error) {
	return []float32{1, 0}, nil
}

const testSecret = "test-secret-for-api"

type testEnv struct {
	echo       *echo.Echo
	controller *Controller
	tokens     *auth.TokenService
	store      *MockDataStore
	cameras    *camera.Pool
	workers    *inference.Registry
}

// setupTestEnvironment builds a controller over fake capture and inference.
// Tenant 1 has a trained index; tenant 2 has none. store may be nil.
func setupTestEnvironment(t *testing.T, store *MockDataStore) *testEnv {
	t.Helper()

	modelsRoot := t.TempDir()
	require.NoError(t, modelcache.WriteIndex(modelcache.TenantDir(modelsRoot, 1),
		[]string{"ana", "bob"}, [][]float32{{1, 0}, {0, 1}}))

	m, err := metrics.NewRecognitionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	settings := &conf.Settings{
		Main:     conf.MainSettings{Timezone: "UTC"},
		Security: conf.SecuritySettings{JWT: conf.JWTSettings{Secret: testSecret, Issuer: "omniface-test"}},
		Stream:   conf.StreamSettings{ErrorCloseDelay: 10 * time.Millisecond},
	}

	tokens, err := auth.NewTokenService(settings.Security.JWT)
	require.NoError(t, err)

	cameras := camera.NewPool(testOpener{},
		camera.WithReadRetryDelay(time.Millisecond),
		camera.WithDeviceProbe(2, time.Minute))
	workers := inference.NewRegistry(&inference.Models{Detector: oneFaceDetector{}, Embedder: constEmbedder{}},
		inference.DefaultThreshold, m)

	deps := session.Deps{
		Cameras: cameras,
		Models:  modelcache.New(modelsRoot, m),
		Workers: workers,
		Ledger:  attendance.NewLedger(nil),
		Metrics: m,
	}
	if store != nil {
		deps.Store = store
	}
	engine := session.NewEngine(deps, session.Config{
		PollInterval: time.Millisecond,
		CapturesRoot: t.TempDir(),
		Location:     time.UTC,
	})

	e := echo.New()
	var opts []Option
	if store != nil {
		opts = append(opts, WithDataStore(store))
	}
	opts = append(opts, WithVersion("test"))
	c := New(e, settings, engine, cameras, workers, tokens, opts...)

	t.Cleanup(func() {
		c.Shutdown()
		workers.Close()
		cameras.Close()
	})

	return &testEnv{
		echo:       e,
		controller: c,
		tokens:     tokens,
		store:      store,
		cameras:    cameras,
		workers:    workers,
	}
}

func (env *testEnv) token(t *testing.T, tenantID uint) string {
	t.Helper()
	tok, err := env.tokens.Issue(tenantID)
	require.NoError(t, err)
	return tok
}

// serve runs one request through the full echo router
func (env *testEnv) serve(t *testing.T, method, path string, tenantID uint) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	if tenantID != 0 {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+env.token(t, tenantID))
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}
