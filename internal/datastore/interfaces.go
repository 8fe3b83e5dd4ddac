// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

// Interface abstracts the underlying database implementation and defines the
// record and lookup operations the recognition engine depends on.
type Interface interface {
	Open() error
	Close() error

	SaveAttendance(ctx context.Context, rec *AttendanceRecord) error
	SaveExit(ctx context.Context, rec *ExitRecord) error
	UpsertPersonState(ctx context.Context, state *PersonState) error

	GetDepartment(ctx context.Context, tenantID, departmentID uint) (*Department, error)
	FindPersonByLabel(ctx context.Context, tenantID uint, label string) (*Person, error)

	// ListAttendance returns rows newest first; a nil day lists the full history
	ListAttendance(ctx context.Context, tenantID uint, day *time.Time) ([]AttendanceRecord, error)
	ListExits(ctx context.Context, tenantID uint, day *time.Time) ([]ExitRecord, error)
	// AttendedToday returns the distinct person names with an attendance row on day
	AttendedToday(ctx context.Context, tenantID uint, day time.Time) ([]string, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB // GORM database instance
	metrics *Metrics
}

// New creates the store selected by the output settings. m may be nil.
func New(settings *conf.Settings, m *Metrics) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: DataStore{metrics: m},
			Settings:  settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: DataStore{metrics: m},
			Settings:  settings,
		}
	default:
		return nil
	}
}

// track records the outcome and duration of one operation
func (ds *DataStore) track(operation string, start time.Time, err error) {
	ds.metrics.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		ds.metrics.RecordOperation(operation, metrics.StatusError)
		ds.metrics.RecordError(operation, metrics.ClassifyError(err))
		return
	}
	ds.metrics.RecordOperation(operation, metrics.StatusSuccess)
}

func (ds *DataStore) ready(operation string) error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Context("operation", operation).
			Build()
	}
	return nil
}

// SaveAttendance appends one attendance row
func (ds *DataStore) SaveAttendance(ctx context.Context, rec *AttendanceRecord) (err error) {
	start := time.Now()
	defer func() { ds.track(metrics.OpSaveAttendance, start, err) }()

	if err := ds.ready(metrics.OpSaveAttendance); err != nil {
		return err
	}
	if rec.TenantID == 0 {
		return validationError("attendance record requires a tenant", "tenant_id", rec.TenantID)
	}
	switch rec.Status {
	case StatusEarly, StatusLate, StatusAbsent:
	default:
		return validationError("unknown attendance status", "status", rec.Status)
	}

	if err := ds.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return dbError(err, metrics.OpSaveAttendance, errors.PriorityHigh,
			"tenant_id", rec.TenantID,
			"date", rec.Date)
	}
	return nil
}

// SaveExit appends one exit row
func (ds *DataStore) SaveExit(ctx context.Context, rec *ExitRecord) (err error) {
	start := time.Now()
	defer func() { ds.track(metrics.OpSaveExit, start, err) }()

	if err := ds.ready(metrics.OpSaveExit); err != nil {
		return err
	}
	if rec.TenantID == 0 {
		return validationError("exit record requires a tenant", "tenant_id", rec.TenantID)
	}

	if err := ds.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return dbError(err, metrics.OpSaveExit, errors.PriorityHigh,
			"tenant_id", rec.TenantID,
			"date", rec.Date)
	}
	return nil
}

// UpsertPersonState inserts or overwrites the state row of one person
func (ds *DataStore) UpsertPersonState(ctx context.Context, state *PersonState) (err error) {
	start := time.Now()
	defer func() { ds.track(metrics.OpUpsertPersonState, start, err) }()

	if err := ds.ready(metrics.OpUpsertPersonState); err != nil {
		return err
	}
	if state.PersonID == 0 {
		return validationError("person state requires a person id", "person_id", state.PersonID)
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	err = ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "person_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emotion", "location", "updated_at"}),
	}).Create(state).Error
	if err != nil {
		return dbError(err, metrics.OpUpsertPersonState, errors.PriorityMedium,
			"person_id", state.PersonID)
	}
	return nil
}

// GetDepartment loads a department scoped to its tenant
func (ds *DataStore) GetDepartment(ctx context.Context, tenantID, departmentID uint) (_ *Department, err error) {
	start := time.Now()
	defer func() { ds.track(metrics.OpGetDepartment, start, err) }()

	if err := ds.ready(metrics.OpGetDepartment); err != nil {
		return nil, err
	}

	var dept Department
	err = ds.DB.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", departmentID, tenantID).
		First(&dept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(err, metrics.OpGetDepartment, "department_id", departmentID)
		}
		return nil, dbError(err, metrics.OpGetDepartment, "", "department_id", departmentID)
	}
	return &dept, nil
}

// FindPersonByLabel looks up the registered person behind an index label
func (ds *DataStore) FindPersonByLabel(ctx context.Context, tenantID uint, label string) (_ *Person, err error) {
	start := time.Now()
	defer func() { ds.track(metrics.OpFindPerson, start, err) }()

	if err := ds.ready(metrics.OpFindPerson); err != nil {
		return nil, err
	}

	var person Person
	err = ds.DB.WithContext(ctx).
		Where("tenant_id = ? AND label = ?", tenantID, label).
		First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(err, metrics.OpFindPerson, "tenant_id", tenantID)
		}
		return nil, dbError(err, metrics.OpFindPerson, "", "tenant_id", tenantID)
	}
	return &person, nil
}

// ListAttendance lists attendance rows of a tenant, newest first
func (ds *DataStore) ListAttendance(ctx context.Context, tenantID uint, day *time.Time) (_ []AttendanceRecord, err error) {
	start := time.Now()
	defer func() { ds.track(metrics.OpListAttendance, start, err) }()

	if err := ds.ready(metrics.OpListAttendance); err != nil {
		return nil, err
	}

	var rows []AttendanceRecord
	if err := scopeByDay(ds.DB.WithContext(ctx), tenantID, day).Find(&rows).Error; err != nil {
		return nil, dbError(err, metrics.OpListAttendance, "", "tenant_id", tenantID)
	}
	return rows, nil
}

// ListExits lists exit rows of a tenant, newest first
func (ds *DataStore) ListExits(ctx context.Context, tenantID uint, day *time.Time) (_ []ExitRecord, err error) {
	start := time.Now()
	defer func() { ds.track(metrics.OpListExits, start, err) }()

	if err := ds.ready(metrics.OpListExits); err != nil {
		return nil, err
	}

	var rows []ExitRecord
	if err := scopeByDay(ds.DB.WithContext(ctx), tenantID, day).Find(&rows).Error; err != nil {
		return nil, dbError(err, metrics.OpListExits, "", "tenant_id", tenantID)
	}
	return rows, nil
}

// AttendedToday returns the names already checked in on day
func (ds *DataStore) AttendedToday(ctx context.Context, tenantID uint, day time.Time) (_ []string, err error) {
	start := time.Now()
	defer func() { ds.track(metrics.OpAttendedToday, start, err) }()

	if err := ds.ready(metrics.OpAttendedToday); err != nil {
		return nil, err
	}

	var names []string
	err = ds.DB.WithContext(ctx).
		Model(&AttendanceRecord{}).
		Where("tenant_id = ? AND date = ?", tenantID, day.Format(DateLayout)).
		Distinct().
		Pluck("name", &names).Error
	if err != nil {
		return nil, dbError(err, metrics.OpAttendedToday, "", "tenant_id", tenantID)
	}
	return names, nil
}

func scopeByDay(db *gorm.DB, tenantID uint, day *time.Time) *gorm.DB {
	q := db.Where("tenant_id = ?", tenantID)
	if day != nil {
		q = q.Where("date = ?", day.Format(DateLayout))
	}
	return q.Order("id DESC")
}
