package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// QueryObserver receives the outcome of every SQL statement. The datastore
// uses it to feed query duration and error metrics.
type QueryObserver func(operation string, elapsed time.Duration, err error)

// GormLoggerAdapter adapts Logger to GORM's logger.Interface. Statements log
// at TRACE, slow statements and failures at WARN.
//
//	gormLogger := logger.NewGormLoggerAdapter(log, 200*time.Millisecond)
//	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
type GormLoggerAdapter struct {
	logger        Logger
	slowThreshold time.Duration
	observer      QueryObserver
}

// NewGormLoggerAdapter creates the adapter. slowThreshold 0 disables slow query warnings.
func NewGormLoggerAdapter(logger Logger, slowThreshold time.Duration) *GormLoggerAdapter {
	if logger == nil {
		logger = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormLoggerAdapter{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// WithObserver returns a copy that reports every statement to obs
func (a *GormLoggerAdapter) WithObserver(obs QueryObserver) *GormLoggerAdapter {
	c := *a
	c.observer = obs
	return &c
}

// LogMode is a no-op; levels come from the central logger config
func (a *GormLoggerAdapter) LogMode(_ gorm_logger.LogLevel) gorm_logger.Interface {
	return a
}

func (a *GormLoggerAdapter) Info(_ context.Context, msg string, data ...any) {
	a.logger.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.logger.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, data ...any) {
	a.logger.Error(fmt.Sprintf(msg, data...))
}

// Trace logs one executed statement
func (a *GormLoggerAdapter) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	if a.observer != nil {
		var obsErr error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			obsErr = err
		}
		a.observer(sqlOperation(sql), elapsed, obsErr)
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		a.logger.Warn("query error",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()),
			Error(err))

	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		a.logger.Warn("slow query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()),
			Duration("threshold", a.slowThreshold))

	default:
		a.logger.Trace("sql query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()))
	}
}

// sqlOperation returns the leading verb of a statement in lower case ("select", "insert").
func sqlOperation(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexByte(sql, ' '); i > 0 {
		sql = sql[:i]
	}
	if sql == "" {
		return "unknown"
	}
	return strings.ToLower(sql)
}
