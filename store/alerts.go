package store

import (
	"context"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AlertRepo struct {
	db *gorm.DB
}

// AlertFilter narrows List
type AlertFilter struct {
	Type        models.AlertType
	RecipientID string
	UnreadOnly  bool
	Limit       int
	Offset      int
}

// RaiseOnce inserts the alert unless an unread alert with the same
// (type, plate, location, recipient) exists. created=false means it was deduplicated.
func (r *AlertRepo) RaiseOnce(ctx context.Context, a *models.AuthorityAlert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.Read = false
	key := models.AlertOpenKey(a.Type, a.PlateNumber, a.LocationID, a.RecipientID)
	a.OpenKey = &key

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "open_key"}},
		DoNothing: true,
	}).Create(a)
	if res.Error != nil {
		return false, wrapErr("store.Alerts.RaiseOnce", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkRead closes the alert and frees its dedup slot
func (r *AlertRepo) MarkRead(ctx context.Context, id string) (*models.AuthorityAlert, error) {
	const op = "store.Alerts.MarkRead"
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.AuthorityAlert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"read":     true,
			"read_at":  now,
			"open_key": nil,
		})
	if res.Error != nil {
		return nil, wrapErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Errorf(apperr.KindNotFound, op, "alert %s not found", id)
	}

	var a models.AuthorityAlert
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, wrapErr(op, err)
	}
	return &a, nil
}

// List returns alerts visible to recipientID (its own plus broadcasts), newest first
func (r *AlertRepo) List(ctx context.Context, f AlertFilter) ([]models.AuthorityAlert, int64, error) {
	const op = "store.Alerts.List"
	query := r.db.WithContext(ctx).Model(&models.AuthorityAlert{})

	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.RecipientID != "" {
		query = query.Where("recipient_id = ? OR recipient_id IS NULL", f.RecipientID)
	}
	if f.UnreadOnly {
		query = query.Where("read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapErr(op, err)
	}

	var out []models.AuthorityAlert
	err := query.Order("created_at DESC").
		Limit(ClampLimit(f.Limit)).
		Offset(f.Offset).
		Find(&out).Error
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return out, total, nil
}
