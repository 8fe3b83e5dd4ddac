package datastore

import (
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection and migrates the schema
func (store *SQLiteStore) Open() error {
	path := conf.ResolvePath(store.Settings.Output.SQLite.Path)
	if err := conf.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	// WAL lets the listing endpoints read while sessions insert
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: createGormLogger(store.metrics)})
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "db_type", "sqlite", "path", path)
	}

	store.DB = db
	GetLogger().Info("sqlite database opened", logger.String("path", path))
	return performAutoMigration(db, "SQLite")
}

// Close closes the SQLite connection pool
func (store *SQLiteStore) Close() error {
	return closeDB(store.DB, "SQLite")
}
