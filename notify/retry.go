package notify

import (
	"context"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/metrics"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/sirupsen/logrus"
)

// RetryPolicy is the retry budget and the backoff schedule indexed by retry count
type RetryPolicy struct {
	MaxRetries int
	Backoff    []time.Duration
}

// DefaultRetryPolicy: three retries after 5, 15 and 30 minutes
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	Backoff:    []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute},
}

// Delay is the wait before retry number retryCount+1. Counts past the
// schedule reuse its last entry.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[retryCount]
}

// HasBudget reports whether the row may be attempted again at all
func (p RetryPolicy) HasBudget(n models.NotificationLog) bool {
	return n.Status.Retryable() && n.RetryCount < p.MaxRetries
}

// Eligible reports whether the row is due for a retry at now
func (p RetryPolicy) Eligible(n models.NotificationLog, now time.Time) bool {
	return p.HasBudget(n) && now.Sub(n.LastAttemptAt()) >= p.Delay(n.RetryCount)
}

// RetryStore is the delivery-log access the scheduler needs
type RetryStore interface {
	Get(ctx context.Context, id string) (*models.NotificationLog, error)
	ListRetryCandidates(ctx context.Context, maxRetries, limit int) ([]models.NotificationLog, error)
	ApplyAttempt(ctx context.Context, id string, expectedRetryCount int, updates map[string]interface{}) (bool, error)
}

// Redeliverer repeats the provider call for an existing row
type Redeliverer interface {
	Redeliver(ctx context.Context, n *models.NotificationLog) (Outcome, error)
	Cancelled(ctx context.Context, violationID *string) (bool, error)
}

type RetryScheduler struct {
	logs       RetryStore
	dispatcher Redeliverer
	policy     RetryPolicy
	batchSize  int
	now        func() time.Time
}

func NewRetryScheduler(logs RetryStore, dispatcher Redeliverer, policy RetryPolicy, batchSize int) *RetryScheduler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RetryScheduler{
		logs:       logs,
		dispatcher: dispatcher,
		policy:     policy,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// RunOnce retries every due row of one batch
func (s *RetryScheduler) RunOnce(ctx context.Context) error {
	candidates, err := s.logs.ListRetryCandidates(ctx, s.policy.MaxRetries, s.batchSize)
	if err != nil {
		return err
	}

	now := s.now()
	attempted, succeeded, failed := 0, 0, 0
	for i := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n := candidates[i]
		if !s.policy.Eligible(n, now) {
			continue
		}

		updated, err := s.retry(ctx, &n)
		if apperr.IsKind(err, apperr.KindConflict) {
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("log_id", n.ID).Error("❌ [RETRY] Retry bookkeeping failed")
			failed++
			continue
		}
		attempted++
		if updated.Status == models.DeliverySent || updated.Status == models.DeliveryDelivered {
			succeeded++
		} else {
			failed++
		}
	}

	if attempted > 0 || failed > 0 {
		logrus.Infof("🔁 [RETRY] Retry pass completed: %d attempted, %d sent, %d failed", attempted, succeeded, failed)
	}
	return nil
}

// ManualRetry attempts one row now, ignoring the backoff window.
// The retry budget and the retryable-status rule still apply.
func (s *RetryScheduler) ManualRetry(ctx context.Context, logID string) (*models.NotificationLog, error) {
	const op = "notify.RetryScheduler.ManualRetry"

	n, err := s.logs.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	if !n.Status.Retryable() {
		return nil, apperr.Errorf(apperr.KindConflict, op, "notification %s is %s and cannot be retried", logID, n.Status)
	}
	if n.RetryCount >= s.policy.MaxRetries {
		return nil, apperr.Errorf(apperr.KindConflict, op, "notification %s exhausted its %d retries", logID, s.policy.MaxRetries)
	}
	return s.retry(ctx, n)
}

// retry claims the row by bumping retry_count (optimistic on the count it was
// read with), calls the provider, then records the outcome on the claimed row.
// A lost claim returns KindConflict without contacting the provider.
func (s *RetryScheduler) retry(ctx context.Context, n *models.NotificationLog) (*models.NotificationLog, error) {
	const op = "notify.RetryScheduler.retry"
	entry := logrus.WithFields(logrus.Fields{"log_id": n.ID, "channel": n.Channel, "retry": n.RetryCount + 1})

	cancelled, err := s.dispatcher.Cancelled(ctx, n.ViolationID)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return s.closeCancelled(ctx, n, n.RetryCount)
	}

	now := s.now()
	claimed, err := s.logs.ApplyAttempt(ctx, n.ID, n.RetryCount, map[string]interface{}{
		"retry_count":   n.RetryCount + 1,
		"last_retry_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, apperr.Errorf(apperr.KindConflict, op, "notification %s is being retried elsewhere", n.ID)
	}
	n.RetryCount++
	n.LastRetryAt = &now

	out, err := s.dispatcher.Redeliver(ctx, n)
	if err != nil {
		return nil, err
	}
	// The claim is taken; its outcome must land on the row
	ctx = context.WithoutCancel(ctx)
	if out.Skipped {
		return s.closeCancelled(ctx, n, n.RetryCount)
	}

	updates := map[string]interface{}{"status": out.Status}
	switch {
	case out.Success():
		updates["error"] = nil
		updates["delivered_at"] = now
		if out.ProviderMessageID != "" {
			updates["provider_message_id"] = out.ProviderMessageID
		}
		metrics.RetryAttempts.WithLabelValues("sent").Inc()
		entry.Info("✅ [RETRY] Notification delivered on retry")
	case out.Status == models.DeliveryRejected:
		updates["error"] = errString(out.Err)
		metrics.RetryAttempts.WithLabelValues("rejected").Inc()
		entry.WithError(out.Err).Warn("⛔ [RETRY] Provider rejected notification, giving up")
	default:
		updates["status"] = models.DeliveryFailed
		updates["error"] = errString(out.Err)
		metrics.RetryAttempts.WithLabelValues("failed").Inc()
		entry.WithError(out.Err).Warn("⚠️ [RETRY] Retry failed")
	}
	if out.Detail != "" {
		updates["status_detail"] = out.Detail
	}

	if _, err := s.logs.ApplyAttempt(ctx, n.ID, n.RetryCount, updates); err != nil {
		return nil, err
	}
	return s.logs.Get(ctx, n.ID)
}

func (s *RetryScheduler) closeCancelled(ctx context.Context, n *models.NotificationLog, retryCount int) (*models.NotificationLog, error) {
	if _, err := s.logs.ApplyAttempt(ctx, n.ID, retryCount, map[string]interface{}{
		"status":        models.DeliveryRejected,
		"status_detail": detailViolationCancelled,
	}); err != nil {
		return nil, err
	}
	metrics.RetryAttempts.WithLabelValues("skipped").Inc()
	logrus.WithField("log_id", n.ID).Info("⏭️  [RETRY] Violation cancelled, notification closed")
	return s.logs.Get(ctx, n.ID)
}

func errString(err error) interface{} {
	if err == nil {
		return nil
	}
	return err.Error()
}
