package datastore

import (
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is logged as slow
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// createGormLogger routes gorm output into the datastore module logger and
// feeds statement timings into the datastore metrics.
func createGormLogger(m *Metrics) gormlogger.Interface {
	adapter := logger.NewGormLoggerAdapter(GetLogger(), DefaultSlowQueryThreshold)
	if m != nil {
		adapter = adapter.WithObserver(m.ObserveStatement)
	}
	return adapter
}

// migratedModels lists every table the engine owns
func migratedModels() []any {
	return []any{
		&Department{},
		&Person{},
		&AttendanceRecord{},
		&ExitRecord{},
		&PersonState{},
	}
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, dbType string) error {
	migrationStart := time.Now()
	migrationLogger := GetLogger().With(logger.String("db_type", dbType))

	migrationLogger.Debug("Starting database migration")

	if err := db.AutoMigrate(migratedModels()...); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Timing("auto_migrate", time.Since(migrationStart)).
			Build()
	}

	migrationLogger.Debug("Database migration completed successfully",
		logger.Duration("total_duration", time.Since(migrationStart)),
		logger.Int("tables_migrated", len(migratedModels())))
	return nil
}

// closeDB closes the connection pool behind a gorm handle
func closeDB(db *gorm.DB, dbType string) error {
	if db == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Context("db_type", dbType).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "close", "", "db_type", dbType)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "", "db_type", dbType)
	}

	GetLogger().Debug("database connection closed", logger.String("db_type", dbType))
	return nil
}
