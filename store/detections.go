package store

import (
	"context"
	"errors"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"gorm.io/gorm"
)

type DetectionRepo struct {
	db *gorm.DB
}

// Create writes a batch of detections from one capture
func (r *DetectionRepo) Create(ctx context.Context, detections []models.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	return wrapErr("store.Detections.Create", r.db.WithContext(ctx).Create(&detections).Error)
}

// LatestSighting returns the newest detection of plate at locationID since `since`,
// or nil when the vehicle was not seen. Sentinel plates never count as a sighting.
func (r *DetectionRepo) LatestSighting(ctx context.Context, plate, locationID string, since time.Time) (*models.Detection, error) {
	if models.IsSentinelPlate(plate) {
		return nil, nil
	}
	var d models.Detection
	err := r.db.WithContext(ctx).
		Where("plate_number = ? AND location_id = ? AND detected_at >= ?", plate, locationID, since).
		Where("plate_number NOT IN ?", []string{models.PlateAbsent, models.PlateUnreadable}).
		Order("detected_at DESC").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("store.Detections.LatestSighting", err)
	}
	return &d, nil
}

// ListEmptyOlderThan returns up to limit empty-scene detections captured
// before cutoff, resuming after the cursor
func (r *DetectionRepo) ListEmptyOlderThan(ctx context.Context, cutoff time.Time, after models.Cursor, limit int) ([]models.Detection, error) {
	q := r.db.WithContext(ctx).Where("object_class = ? AND detected_at < ?", models.ObjectNone, cutoff)
	if !after.IsZero() {
		q = q.Where("(detected_at, id) > (?, ?)", after.At, after.ID)
	}
	var out []models.Detection
	err := q.Order("detected_at ASC, id ASC").Limit(limit).Find(&out).Error
	return out, wrapErr("store.Detections.ListEmptyOlderThan", err)
}

// IsReferenced reports whether an open incident or an unread authority alert
// still points at the detection
func (r *DetectionRepo) IsReferenced(ctx context.Context, detectionID string) (bool, error) {
	const op = "store.Detections.IsReferenced"
	db := r.db.WithContext(ctx)

	var incidents int64
	if err := db.Model(&models.Incident{}).
		Where("detection_id = ? AND status = ?", detectionID, models.IncidentOpen).
		Count(&incidents).Error; err != nil {
		return false, wrapErr(op, err)
	}
	if incidents > 0 {
		return true, nil
	}

	var alerts int64
	if err := db.Model(&models.AuthorityAlert{}).
		Where("detection_id = ? AND read = ?", detectionID, false).
		Count(&alerts).Error; err != nil {
		return false, wrapErr(op, err)
	}
	return alerts > 0, nil
}

func (r *DetectionRepo) Delete(ctx context.Context, id string) error {
	return wrapErr("store.Detections.Delete",
		r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Detection{}).Error)
}
