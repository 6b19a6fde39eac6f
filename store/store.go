// Package store is the gorm-backed persistence layer for violations, detections,
// delivery logs, authority alerts and the read-only collaborator tables.
package store

import (
	"errors"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Store groups the repositories sharing one connection pool
type Store struct {
	db *gorm.DB

	Violations    *ViolationRepo
	Detections    *DetectionRepo
	Notifications *NotificationRepo
	Alerts        *AlertRepo
	Registry      *RegistryRepo
	Users         *UserRepo
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Violations:    &ViolationRepo{db: db},
		Detections:    &DetectionRepo{db: db},
		Notifications: &NotificationRepo{db: db},
		Alerts:        &AlertRepo{db: db},
		Registry:      &RegistryRepo{db: db},
		Users:         &UserRepo{db: db},
	}
}

// DB exposes the underlying handle for health checks and admin tools
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ClampLimit applies the default page size and the hard cap
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// wrapErr maps gorm errors onto the error kinds callers branch on
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.E(apperr.KindNotFound, op, err)
	}
	return apperr.E(apperr.KindPersistence, op, err)
}
