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

// upsertAttempts bounds the extend/insert loop when a concurrent writer
// keeps racing the same active slot
const upsertAttempts = 3

type ViolationRepo struct {
	db *gorm.DB
}

// ViolationFilter narrows List
type ViolationFilter struct {
	Status      models.ViolationStatus
	LocationID  string
	PlateNumber string
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}

// UpsertActive extends the active violation for (plate, location) or creates a
// new warning. created reports which branch won. The unique active_key index
// makes the insert atomic: a concurrent duplicate loses the conflict and extends instead.
func (r *ViolationRepo) UpsertActive(ctx context.Context, plate, locationID string, detectedAt, expiresAt time.Time, detectionID *string) (*models.Violation, bool, error) {
	const op = "store.Violations.UpsertActive"
	key := models.ActiveKey(plate, locationID)
	db := r.db.WithContext(ctx)

	for attempt := 0; attempt < upsertAttempts; attempt++ {
		var extended []models.Violation
		res := db.Model(&extended).
			Clauses(clause.Returning{}).
			Where("active_key = ?", key).
			Updates(map[string]interface{}{
				"warning_expires_at": expiresAt,
				"updated_at":         time.Now(),
			})
		if res.Error != nil {
			return nil, false, wrapErr(op, res.Error)
		}
		if res.RowsAffected > 0 && len(extended) > 0 {
			return &extended[0], false, nil
		}

		now := time.Now()
		v := &models.Violation{
			ID:               uuid.New().String(),
			PlateNumber:      plate,
			LocationID:       locationID,
			Status:           models.ViolationWarning,
			DetectedAt:       detectedAt,
			WarningExpiresAt: &expiresAt,
			ActiveKey:        &key,
			DetectionID:      detectionID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		res = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "active_key"}},
			DoNothing: true,
		}).Create(v)
		if res.Error != nil {
			return nil, false, wrapErr(op, res.Error)
		}
		if res.RowsAffected == 1 {
			return v, true, nil
		}
		// Lost the insert race; the winner's row is extended on the next pass
	}

	return nil, false, apperr.Errorf(apperr.KindConflict, op, "active slot %s kept changing", key)
}

func (r *ViolationRepo) Get(ctx context.Context, id string) (*models.Violation, error) {
	var v models.Violation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, wrapErr("store.Violations.Get", err)
	}
	return &v, nil
}

// ListWarnings returns up to limit warnings after the cursor, soonest expiry first
func (r *ViolationRepo) ListWarnings(ctx context.Context, after models.Cursor, limit int) ([]models.Violation, error) {
	q := r.db.WithContext(ctx).Where("status = ?", models.ViolationWarning)
	if !after.IsZero() {
		q = q.Where("(warning_expires_at, id) > (?, ?)", after.At, after.ID)
	}
	var out []models.Violation
	err := q.Order("warning_expires_at ASC, id ASC").Limit(limit).Find(&out).Error
	return out, wrapErr("store.Violations.ListWarnings", err)
}

// ListWarningsAt returns every warning at exactly locationID
func (r *ViolationRepo) ListWarningsAt(ctx context.Context, locationID string) ([]models.Violation, error) {
	var out []models.Violation
	err := r.db.WithContext(ctx).
		Where("status = ? AND location_id = ?", models.ViolationWarning, locationID).
		Find(&out).Error
	return out, wrapErr("store.Violations.ListWarningsAt", err)
}

// Transition moves violation id to status `to` if and only if its current status
// is a legal source. Leaving the active set frees the (plate, location) slot in
// the same statement. applied=false means the row was not in a source state.
func (r *ViolationRepo) Transition(ctx context.Context, id string, to models.ViolationStatus, set map[string]interface{}) (bool, error) {
	const op = "store.Violations.Transition"
	sources := models.SourcesFor(to)
	if len(sources) == 0 {
		return false, apperr.Errorf(apperr.KindConflict, op, "nothing transitions into %s", to)
	}

	updates := map[string]interface{}{}
	for k, v := range set {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()
	if !to.IsActive() {
		updates["active_key"] = nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.Violation{}).
		Where("id = ? AND status IN ?", id, sources).
		Updates(updates)
	if res.Error != nil {
		return false, wrapErr(op, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List returns one page of violations plus the unpaginated total
func (r *ViolationRepo) List(ctx context.Context, f ViolationFilter) ([]models.Violation, int64, error) {
	const op = "store.Violations.List"
	query := r.db.WithContext(ctx).Model(&models.Violation{})

	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.LocationID != "" {
		query = query.Where("location_id = ?", f.LocationID)
	}
	if f.PlateNumber != "" {
		query = query.Where("plate_number ILIKE ?", "%"+f.PlateNumber+"%")
	}
	if f.StartTime != nil {
		query = query.Where("detected_at >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		query = query.Where("detected_at <= ?", *f.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapErr(op, err)
	}

	var out []models.Violation
	err := query.Order("detected_at DESC").
		Limit(ClampLimit(f.Limit)).
		Offset(f.Offset).
		Find(&out).Error
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return out, total, nil
}

// Stats counts violations per status
func (r *ViolationRepo) Stats(ctx context.Context) (map[models.ViolationStatus]int64, error) {
	var rows []struct {
		Status models.ViolationStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Violation{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapErr("store.Violations.Stats", err)
	}

	out := make(map[models.ViolationStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
