package datastore

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

// createDatabase opens a SQLite store in a temp dir and closes it after the test
func createDatabase(t *testing.T, m *Metrics) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	ds := New(settings, m)
	require.NoError(t, ds.Open(), "Failed to open database")
	t.Cleanup(func() {
		assert.NoError(t, ds.Close(), "Failed to close datastore")
	})

	store, ok := ds.(*SQLiteStore)
	require.True(t, ok)
	return store
}

func uintPtr(v uint) *uint { return &v }

func TestNewSelectsStore(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	assert.Nil(t, New(settings, nil))

	settings.Output.MySQL.Enabled = true
	_, ok := New(settings, nil).(*MySQLStore)
	assert.True(t, ok)

	settings.Output.SQLite.Enabled = true
	_, ok = New(settings, nil).(*SQLiteStore)
	assert.True(t, ok, "sqlite wins when both are set")
}

func TestSaveAndListAttendance(t *testing.T) {
	t.Parallel()

	store := createDatabase(t, nil)
	ctx := context.Background()
	today := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	rows := []*AttendanceRecord{
		{TenantID: 1, Name: "ana", Status: StatusEarly, Kind: KindKnown, Date: yesterday.Format(DateLayout), Time: "08:00:00"},
		{TenantID: 1, Name: "ana", Status: StatusLate, Kind: KindKnown, Date: today.Format(DateLayout), Time: "09:00:00"},
		{TenantID: 1, Name: "luis", Status: StatusLate, Kind: KindKnown, Date: today.Format(DateLayout), Time: "09:05:00"},
		{TenantID: 2, Name: "eva", Status: StatusEarly, Kind: KindKnown, Date: today.Format(DateLayout), Time: "07:55:00"},
	}
	for _, r := range rows {
		require.NoError(t, store.SaveAttendance(ctx, r))
		assert.NotZero(t, r.ID)
	}

	got, err := store.ListAttendance(ctx, 1, &today)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "luis", got[0].Name, "newest first")
	assert.Equal(t, "ana", got[1].Name)

	history, err := store.ListAttendance(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	names, err := store.AttendedToday(ctx, 1, today)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ana", "luis"}, names)
}

func TestSaveAttendanceValidation(t *testing.T) {
	t.Parallel()

	store := createDatabase(t, nil)
	ctx := context.Background()

	err := store.SaveAttendance(ctx, &AttendanceRecord{TenantID: 1, Status: "tardy"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	err = store.SaveAttendance(ctx, &AttendanceRecord{Status: StatusLate})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestExitsAreNotDeduplicated(t *testing.T) {
	t.Parallel()

	store := createDatabase(t, nil)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	for range 3 {
		require.NoError(t, store.SaveExit(ctx, &ExitRecord{
			TenantID: 1, PersonID: uintPtr(4), Name: "ana", Kind: KindKnown,
			Date: day.Format(DateLayout), Time: "18:00:00",
		}))
	}

	got, err := store.ListExits(ctx, 1, &day)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestUpsertPersonState(t *testing.T) {
	t.Parallel()

	store := createDatabase(t, nil)
	ctx := context.Background()

	require.NoError(t, store.UpsertPersonState(ctx, &PersonState{PersonID: 7, Emotion: "happy", Location: "camera-0"}))
	require.NoError(t, store.UpsertPersonState(ctx, &PersonState{PersonID: 7, Emotion: "sad", Location: "camera-1"}))

	var states []PersonState
	require.NoError(t, store.DB.Find(&states).Error)
	require.Len(t, states, 1, "person state is unique per person")
	assert.Equal(t, "sad", states[0].Emotion)
	assert.Equal(t, "camera-1", states[0].Location)

	err := store.UpsertPersonState(ctx, &PersonState{Emotion: "happy"})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestLookupsAreTenantScoped(t *testing.T) {
	t.Parallel()

	store := createDatabase(t, nil)
	ctx := context.Background()

	dept := &Department{TenantID: 1, Name: "Ops", EarlyTime: "07:30", LateTime: "13:00"}
	require.NoError(t, store.DB.Create(dept).Error)
	require.NoError(t, store.DB.Create(&Person{TenantID: 1, Label: "ana", FullName: "Ana Perez", DepartmentID: &dept.ID}).Error)

	got, err := store.GetDepartment(ctx, 1, dept.ID)
	require.NoError(t, err)
	assert.Equal(t, "07:30", got.EarlyTime)

	_, err = store.GetDepartment(ctx, 2, dept.ID)
	assert.True(t, errors.IsNotFound(err))

	p, err := store.FindPersonByLabel(ctx, 1, "ana")
	require.NoError(t, err)
	assert.Equal(t, "Ana Perez", p.FullName)

	_, err = store.FindPersonByLabel(ctx, 2, "ana")
	assert.True(t, errors.IsNotFound(err))
}

func TestStoreRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewDatastoreMetrics(reg)
	require.NoError(t, err)

	store := createDatabase(t, m)
	require.NoError(t, store.SaveExit(context.Background(), &ExitRecord{TenantID: 1, Name: "ana", Date: "2026-03-02"}))

	count, err := testutil.GatherAndCount(reg,
		"omniface_datastore_operations_total",
		"omniface_datastore_sql_statements_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestClosedStoreReportsState(t *testing.T) {
	t.Parallel()

	var ds DataStore
	_, err := ds.ListExits(context.Background(), 1, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestBuildMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn := buildMySQLDSN(&conf.MySQLSettings{
		Username: "omni", Password: "pw", Host: "db", Port: "3306", Database: "omniface",
	})
	assert.Equal(t, "omni:pw@tcp(db:3306)/omniface?charset=utf8mb4&parseTime=True&loc=UTC", dsn)
}

// countingStore counts lookups that reach the database
type countingStore struct {
	Interface
	personCalls atomic.Int32
	deptCalls   atomic.Int32
}

func (c *countingStore) FindPersonByLabel(ctx context.Context, tenantID uint, label string) (*Person, error) {
	c.personCalls.Add(1)
	return c.Interface.FindPersonByLabel(ctx, tenantID, label)
}

func (c *countingStore) GetDepartment(ctx context.Context, tenantID, id uint) (*Department, error) {
	c.deptCalls.Add(1)
	return c.Interface.GetDepartment(ctx, tenantID, id)
}

func TestDirectoryCachesLookups(t *testing.T) {
	t.Parallel()

	store := createDatabase(t, nil)
	ctx := context.Background()
	require.NoError(t, store.DB.Create(&Person{TenantID: 1, Label: "ana", FullName: "Ana"}).Error)
	dept := &Department{TenantID: 1, Name: "Ops"}
	require.NoError(t, store.DB.Create(dept).Error)

	counting := &countingStore{Interface: store}
	dir := NewDirectory(counting, time.Minute)

	for range 3 {
		p, err := dir.Person(ctx, 1, "ana")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Ana", p.FullName)
	}
	assert.Equal(t, int32(1), counting.personCalls.Load())

	for range 2 {
		p, err := dir.Person(ctx, 1, "ghost")
		require.NoError(t, err)
		assert.Nil(t, p)
	}
	assert.Equal(t, int32(2), counting.personCalls.Load(), "missing labels are cached too")

	d, err := dir.Department(ctx, 1, nil)
	require.NoError(t, err)
	assert.Nil(t, d)

	for range 2 {
		d, err = dir.Department(ctx, 1, &dept.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ops", d.Name)
	}
	assert.Equal(t, int32(1), counting.deptCalls.Load())

	dir.Flush()
	_, err = dir.Person(ctx, 1, "ana")
	require.NoError(t, err)
	assert.Equal(t, int32(3), counting.personCalls.Load())
}
