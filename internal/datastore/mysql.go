package datastore

import (
	"fmt"
	"net"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// buildMySQLDSN formats the go-sql-driver DSN. Times are parsed in UTC; the
// engine stores dates and clock times as strings in the configured location.
func buildMySQLDSN(s *conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.Username, s.Password, net.JoinHostPort(s.Host, s.Port), s.Database)
}

// Open sets up the MySQL database connection and migrates the schema
func (store *MySQLStore) Open() error {
	cfg := &store.Settings.Output.MySQL
	dsn := buildMySQLDSN(cfg)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger(store.metrics)})
	if err != nil {
		GetLogger().Error("failed to open MySQL database",
			logger.String("host", cfg.Host),
			logger.String("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.String("dsn", logger.RedactSensitiveData(dsn)),
			logger.Error(err))
		return dbError(err, "open", errors.PriorityCritical,
			"db_type", "mysql",
			"host", cfg.Host,
			"database", cfg.Database)
	}

	store.DB = db
	GetLogger().Info("mysql database opened",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))
	return performAutoMigration(db, "MySQL")
}

// Close closes the MySQL connection pool
func (store *MySQLStore) Close() error {
	return closeDB(store.DB, "MySQL")
}
