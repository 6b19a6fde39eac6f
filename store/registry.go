package store

import (
	"context"
	"errors"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"gorm.io/gorm"
)

// RegistryRepo reads the collaborator tables owned by the vehicle,
// preference and user CRUD surfaces
type RegistryRepo struct {
	db *gorm.DB
}

// LookupByPlate returns the registered vehicle, or nil when the plate is unknown
func (r *RegistryRepo) LookupByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := r.db.WithContext(ctx).Where("plate_number = ?", plate).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("store.Registry.LookupByPlate", err)
	}
	return &v, nil
}

// IsEnabled reports the user's preference for alertType. No row means enabled.
func (r *RegistryRepo) IsEnabled(ctx context.Context, userID string, alertType models.AlertType) (bool, error) {
	var p models.NotificationPreference
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND alert_type = ?", userID, alertType).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, wrapErr("store.Registry.IsEnabled", err)
	}
	return p.Enabled, nil
}

// AuthorityRecipients lists the ids of active users allowed to act on violations
func (r *RegistryRepo) AuthorityRecipients(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("active = ? AND role IN ?", true, []string{models.RoleAdmin, models.RoleAuthority}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, wrapErr("store.Registry.AuthorityRecipients", err)
}

type UserRepo struct {
	db *gorm.DB
}

func (r *UserRepo) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, wrapErr("store.Users.ByUsername", err)
	}
	return &u, nil
}

func (r *UserRepo) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, wrapErr("store.Users.Get", err)
	}
	return &u, nil
}
