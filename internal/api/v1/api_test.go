package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/datastore"
)

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/cameras"},
		{http.MethodPost, "/api/v1/models/reload"},
		{http.MethodGet, "/api/v1/attendance/today"},
		{http.MethodGet, "/api/v1/attendance/history"},
		{http.MethodGet, "/api/v1/exits/today"},
		{http.MethodGet, "/api/v1/exits/history"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			rec := env.serve(t, r.method, r.path, 0)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	rec := env.serve(t, http.MethodGet, "/api/v1/health", 0)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Zero(t, resp.ActiveSessions)
	assert.Zero(t, resp.ActiveWorkers)
	assert.Empty(t, resp.Cameras)
	assert.NotEmpty(t, resp.Timestamp)

	if runtime.GOOS == "linux" {
		require.NotNil(t, resp.Resources)
		assert.Positive(t, resp.Resources.MemoryTotal)
		assert.Positive(t, resp.Resources.Goroutines)
	}
}

func TestListCameras(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	rec := env.serve(t, http.MethodGet, "/api/v1/cameras", 1)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CamerasResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Cameras, 2)
	assert.Equal(t, 0, resp.Cameras[0].ID)
	assert.Equal(t, "Camera 1", resp.Cameras[1].Name)
	assert.False(t, resp.Cameras[0].InUse)
}

func TestReloadModel(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	rec := env.serve(t, http.MethodPost, "/api/v1/models/reload", 1)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "reloaded", resp["status"])
	assert.InDelta(t, 1, resp["tenant_id"], 0)
}

func TestRecordsWithoutStore(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	rec := env.serve(t, http.MethodGet, "/api/v1/attendance/today", 1)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Len(t, resp.CorrelationID, 8)
}

func TestAttendanceToday(t *testing.T) {
	store := new(MockDataStore)
	env := setupTestEnvironment(t, store)

	personID := uint(7)
	today := time.Now().UTC().Format(datastore.DateLayout)
	store.On("ListAttendance", mock.Anything, uint(4), mock.MatchedBy(func(day *time.Time) bool {
		return day != nil && day.Format(datastore.DateLayout) == today
	})).Return([]datastore.AttendanceRecord{
		{ID: 1, TenantID: 4, PersonID: &personID, Name: "ana", Status: datastore.StatusEarly,
			Kind: datastore.KindKnown, PhotoPath: "tenant_4/ana/a.jpg", Date: today, Time: "08:30:00"},
	}, nil).Once()

	rec := env.serve(t, http.MethodGet, "/api/v1/attendance/today", 4)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecordsResponse[AttendanceRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, today, resp.Date)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "ana", resp.Records[0].Name)
	assert.Equal(t, datastore.StatusEarly, resp.Records[0].Status)
	require.NotNil(t, resp.Records[0].PersonID)
	assert.Equal(t, uint(7), *resp.Records[0].PersonID)

	store.AssertExpectations(t)
}

func TestAttendanceHistoryIsUnscoped(t *testing.T) {
	store := new(MockDataStore)
	env := setupTestEnvironment(t, store)

	store.On("ListAttendance", mock.Anything, uint(4), (*time.Time)(nil)).
		Return([]datastore.AttendanceRecord{}, nil).Once()

	rec := env.serve(t, http.MethodGet, "/api/v1/attendance/history", 4)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "date")
	assert.InDelta(t, 0, resp["count"], 0)
	assert.Equal(t, []any{}, resp["records"])

	store.AssertExpectations(t)
}

func TestExitListings(t *testing.T) {
	store := new(MockDataStore)
	env := setupTestEnvironment(t, store)

	store.On("ListExits", mock.Anything, uint(2), mock.AnythingOfType("*time.Time")).
		Return([]datastore.ExitRecord{
			{ID: 3, TenantID: 2, Name: "bob", Kind: datastore.KindKnown, Date: "2026-03-02", Time: "17:00:00"},
			{ID: 4, TenantID: 2, Name: "bob", Kind: datastore.KindKnown, Date: "2026-03-02", Time: "17:00:01"},
		}, nil).Twice()

	for _, path := range []string{"/api/v1/exits/today", "/api/v1/exits/history"} {
		rec := env.serve(t, http.MethodGet, path, 2)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var resp RecordsResponse[ExitRecord]
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, "17:00:01", resp.Records[1].Time)
	}

	store.AssertExpectations(t)
}

func TestListingStoreFailure(t *testing.T) {
	store := new(MockDataStore)
	env := setupTestEnvironment(t, store)

	store.On("ListExits", mock.Anything, uint(1), mock.Anything).
		Return(nil, fmt.Errorf("database is locked")).Once()

	rec := env.serve(t, http.MethodGet, "/api/v1/exits/history", 1)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "database is locked", resp.Error)
	assert.Equal(t, "failed to list exits", resp.Message)
}

func TestTruncateReason(t *testing.T) {
	short := "camera unavailable"
	assert.Equal(t, short, truncateReason(short))

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncateReason(string(long)), 123)
}
