package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/config"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres connection pool and runs migrations
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger: &gormLogger{slowThreshold: cfg.SlowThreshold, level: logger.Warn},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logrus.Info("✅ Database connected successfully")
	return db, nil
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Violation{},
		&models.Detection{},
		&models.NotificationLog{},
		&models.AuthorityAlert{},
		&models.Vehicle{},
		&models.NotificationPreference{},
		&models.Incident{},
		&models.User{},
	)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormLogger routes gorm's logs through logrus
type gormLogger struct {
	slowThreshold time.Duration
	level         logger.LogLevel
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		logrus.WithField("component", "gorm").Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		logrus.WithField("component", "gorm").Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		logrus.WithField("component", "gorm").Errorf(msg, args...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		logrus.WithFields(logrus.Fields{
			"component": "gorm", "elapsed": elapsed, "rows": rows, "sql": sql,
		}).WithError(err).Error("query failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		logrus.WithFields(logrus.Fields{
			"component": "gorm", "elapsed": elapsed, "rows": rows, "sql": sql,
		}).Warn("🐢 slow query")
	case l.level >= logger.Info:
		sql, rows := fc()
		logrus.WithFields(logrus.Fields{
			"component": "gorm", "elapsed": elapsed, "rows": rows,
		}).Debug(sql)
	}
}
