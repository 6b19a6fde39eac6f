package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/metrics"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const detailViolationCancelled = "violation cancelled"

// LogWriter persists delivery-log rows
type LogWriter interface {
	Create(ctx context.Context, n *models.NotificationLog) error
}

// ViolationReader is used to re-check cancellation right before a send
type ViolationReader interface {
	Get(ctx context.Context, id string) (*models.Violation, error)
}

// Request is one message to one recipient over one channel
type Request struct {
	Channel     models.Channel
	Recipient   string
	Message     string
	ViolationID *string
}

// Result of Dispatch. Log is nil only when Skipped.
type Result struct {
	Log     *models.NotificationLog
	Skipped bool
	// ProviderErr is the classified provider failure, if any
	ProviderErr error
}

// Success reports whether the provider accepted the message
func (r *Result) Success() bool {
	if r == nil || r.Log == nil {
		return false
	}
	return r.Log.Status == models.DeliverySent || r.Log.Status == models.DeliveryDelivered
}

// Outcome is one provider attempt, before it is written anywhere
type Outcome struct {
	Status            models.DeliveryStatus
	ProviderMessageID string
	Detail            string
	Err               error
	Skipped           bool
}

func (o Outcome) Success() bool {
	return o.Status == models.DeliverySent || o.Status == models.DeliveryDelivered
}

type DispatcherConfig struct {
	Timeout     time.Duration
	CountryCode string
}

type Dispatcher struct {
	channels    map[models.Channel]Channel
	logs        LogWriter
	violations  ViolationReader
	timeout     time.Duration
	countryCode string
	now         func() time.Time
}

func NewDispatcher(logs LogWriter, violations ViolationReader, cfg DispatcherConfig, channels ...Channel) *Dispatcher {
	d := &Dispatcher{
		channels:    make(map[models.Channel]Channel, len(channels)),
		logs:        logs,
		violations:  violations,
		timeout:     cfg.Timeout,
		countryCode: cfg.CountryCode,
		now:         time.Now,
	}
	if d.timeout <= 0 {
		d.timeout = 10 * time.Second
	}
	if d.countryCode == "" {
		d.countryCode = "63"
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
	}
	return d
}

// Dispatch makes one delivery attempt and writes exactly one delivery-log row
// for it before returning. Provider failures are recorded on the row and in
// Result.ProviderErr; the returned error is reserved for persistence failures.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	const op = "notify.Dispatcher.Dispatch"

	cancelled, err := d.Cancelled(ctx, req.ViolationID)
	if err != nil {
		return nil, err
	}
	if cancelled {
		logrus.WithField("violation_id", *req.ViolationID).Info("⏭️  [DISPATCH] Violation cancelled, notification skipped")
		return &Result{Skipped: true}, nil
	}

	out := d.send(ctx, req.Channel, req.Recipient, req.Message)

	now := d.now()
	row := &models.NotificationLog{
		ID:          uuid.New().String(),
		ViolationID: req.ViolationID,
		Recipient:   req.Recipient,
		Channel:     req.Channel,
		Message:     req.Message,
		Status:      out.Status,
		SentAt:      now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if out.ProviderMessageID != "" {
		row.ProviderMessageID = &out.ProviderMessageID
	}
	if out.Detail != "" {
		row.StatusDetail = &out.Detail
	}
	if out.Err != nil {
		msg := out.Err.Error()
		row.Error = &msg
	}
	if out.Status == models.DeliveryDelivered {
		row.DeliveredAt = &now
	}

	// The provider has been called; the row is written even if the caller left
	if err := d.logs.Create(context.WithoutCancel(ctx), row); err != nil {
		logrus.WithError(err).WithField("channel", req.Channel).Error("❌ [DISPATCH] Failed to write delivery log")
		return &Result{Log: row, ProviderErr: out.Err}, apperr.E(apperr.KindPersistence, op, err)
	}

	entry := logrus.WithFields(logrus.Fields{
		"log_id":  row.ID,
		"channel": req.Channel,
		"status":  row.Status,
	})
	if out.Err != nil {
		entry.WithError(out.Err).Warn("⚠️ [DISPATCH] Notification not accepted")
	} else {
		entry.Info("📤 [DISPATCH] Notification sent")
	}

	return &Result{Log: row, ProviderErr: out.Err}, nil
}

// Redeliver repeats the send of an existing row without writing a new one
func (d *Dispatcher) Redeliver(ctx context.Context, n *models.NotificationLog) (Outcome, error) {
	cancelled, err := d.Cancelled(ctx, n.ViolationID)
	if err != nil {
		return Outcome{}, err
	}
	if cancelled {
		return Outcome{Status: models.DeliveryRejected, Detail: detailViolationCancelled, Skipped: true}, nil
	}
	return d.send(ctx, n.Channel, n.Recipient, n.Message), nil
}

// Cancelled reports whether the violation behind a notification was cancelled.
// Notifications without a violation are never cancelled.
func (d *Dispatcher) Cancelled(ctx context.Context, violationID *string) (bool, error) {
	if violationID == nil || d.violations == nil {
		return false, nil
	}
	v, err := d.violations.Get(ctx, *violationID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.Status == models.ViolationCancelled, nil
}

// send performs the provider call under the hard timeout and classifies the answer
func (d *Dispatcher) send(ctx context.Context, channel models.Channel, recipient, message string) Outcome {
	const op = "notify.Dispatcher.send"

	ch, ok := d.channels[channel]
	if !ok {
		return d.record(channel, Outcome{
			Status: models.DeliveryRejected,
			Err:    apperr.Errorf(apperr.KindPermanentProvider, op, "channel %q is not configured", channel),
		})
	}

	to, err := NormalizePhone(recipient, d.countryCode)
	if err != nil {
		return d.record(channel, Outcome{
			Status: models.DeliveryRejected,
			Detail: "invalid recipient",
			Err:    apperr.E(apperr.KindPermanentProvider, op, err),
		})
	}

	// Only the provider timeout bounds the call, never the caller going away
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	// The channel gets the deadline too, but a provider that ignores it
	// must not hold the caller past the timeout
	type sent struct {
		receipt Receipt
		err     error
	}
	done := make(chan sent, 1)
	start := time.Now()
	go func() {
		r, e := ch.Send(callCtx, to, message)
		done <- sent{r, e}
	}()

	var receipt Receipt
	select {
	case s := <-done:
		receipt, err = s.receipt, s.err
	case <-callCtx.Done():
		err = classifyTransport(op, callCtx.Err())
	}
	metrics.ProviderLatencySeconds.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		status := models.DeliverySent
		if receipt.Delivered {
			status = models.DeliveryDelivered
		}
		return d.record(channel, Outcome{Status: status, ProviderMessageID: receipt.ProviderMessageID, Detail: receipt.Detail})
	case apperr.IsKind(err, apperr.KindPermanentProvider):
		return d.record(channel, Outcome{Status: models.DeliveryRejected, Err: err})
	default:
		if apperr.KindOf(err) != apperr.KindTransientProvider {
			err = apperr.E(apperr.KindTransientProvider, op, fmt.Errorf("%s provider: %w", channel, err))
		}
		return d.record(channel, Outcome{Status: models.DeliveryError, Err: err})
	}
}

func (d *Dispatcher) record(channel models.Channel, out Outcome) Outcome {
	metrics.DispatchOutcomes.WithLabelValues(string(channel), string(out.Status)).Inc()
	return out
}
