package store

import (
	"context"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"gorm.io/gorm"
)

type NotificationRepo struct {
	db *gorm.DB
}

// NotificationFilter narrows List
type NotificationFilter struct {
	Status      models.DeliveryStatus
	Channel     models.Channel
	ViolationID string
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}

func (r *NotificationRepo) Create(ctx context.Context, n *models.NotificationLog) error {
	return wrapErr("store.Notifications.Create", r.db.WithContext(ctx).Create(n).Error)
}

func (r *NotificationRepo) Get(ctx context.Context, id string) (*models.NotificationLog, error) {
	var n models.NotificationLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, wrapErr("store.Notifications.Get", err)
	}
	return &n, nil
}

// ListRetryCandidates returns retryable rows that still have budget, oldest attempt first.
// The backoff window depends on each row's retry count and is checked by the caller.
func (r *NotificationRepo) ListRetryCandidates(ctx context.Context, maxRetries, limit int) ([]models.NotificationLog, error) {
	var out []models.NotificationLog
	err := r.db.WithContext(ctx).
		Where("status IN ? AND retry_count < ?", models.RetryableStatuses, maxRetries).
		Order("COALESCE(last_retry_at, sent_at) ASC").
		Limit(limit).
		Find(&out).Error
	return out, wrapErr("store.Notifications.ListRetryCandidates", err)
}

// ApplyAttempt records a retry outcome only if nobody else touched the row since
// it was read: retry_count must still equal expectedRetryCount and the status
// must still be retryable. applied=false means another attempt won.
func (r *NotificationRepo) ApplyAttempt(ctx context.Context, id string, expectedRetryCount int, updates map[string]interface{}) (bool, error) {
	set := map[string]interface{}{"updated_at": time.Now()}
	for k, v := range updates {
		set[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.NotificationLog{}).
		Where("id = ? AND retry_count = ? AND status IN ?", id, expectedRetryCount, models.RetryableStatuses).
		Updates(set)
	if res.Error != nil {
		return false, wrapErr("store.Notifications.ApplyAttempt", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkDelivery applies a provider delivery report to the row carrying providerMessageID
func (r *NotificationRepo) MarkDelivery(ctx context.Context, channel models.Channel, providerMessageID string, status models.DeliveryStatus, detail string, at time.Time) (bool, error) {
	set := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if detail != "" {
		set["status_detail"] = detail
	}
	if status == models.DeliveryDelivered {
		set["delivered_at"] = at
		set["error"] = nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.NotificationLog{}).
		Where("channel = ? AND provider_message_id = ?", channel, providerMessageID).
		Where("status <> ?", models.DeliveryRejected).
		Updates(set)
	if res.Error != nil {
		return false, wrapErr("store.Notifications.MarkDelivery", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List returns one page of delivery logs plus the unpaginated total
func (r *NotificationRepo) List(ctx context.Context, f NotificationFilter) ([]models.NotificationLog, int64, error) {
	const op = "store.Notifications.List"
	query := r.db.WithContext(ctx).Model(&models.NotificationLog{})

	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Channel != "" {
		query = query.Where("channel = ?", f.Channel)
	}
	if f.ViolationID != "" {
		query = query.Where("violation_id = ?", f.ViolationID)
	}
	if f.StartTime != nil {
		query = query.Where("sent_at >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		query = query.Where("sent_at <= ?", *f.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapErr(op, err)
	}

	var out []models.NotificationLog
	err := query.Order("sent_at DESC").
		Limit(ClampLimit(f.Limit)).
		Offset(f.Offset).
		Find(&out).Error
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return out, total, nil
}
