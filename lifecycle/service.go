// Package lifecycle owns violation state: creating and extending warnings,
// clearing them when the vehicle leaves, escalating overdue ones and the
// authority actions that close them.
package lifecycle

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/events"
	"github.com/Keeydi/LedgerMonitor-sub000/metrics"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/notify"
	"github.com/Keeydi/LedgerMonitor-sub000/presence"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxPlateLength = 20

var platePattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

// Alert reasons
const (
	ReasonRegistered      = "registered"
	ReasonUnregistered    = "unregistered"
	ReasonRegistryFailed  = "registry unavailable"
	ReasonPlateAbsent     = "plate not visible"
	ReasonPlateUnreadable = "plate unreadable"
	ReasonStillPresent    = "vehicle still present after grace period"
)

type Config struct {
	GracePeriod    time.Duration
	PresenceWindow time.Duration
}

// Deps are the collaborators of the lifecycle service
type Deps struct {
	Violations  ViolationStore
	Alerts      AlertStore
	Registry    VehicleRegistry
	Preferences Preferences
	Recipients  Recipients
	Notifier    Notifier
	Presence    presence.Index
	Events      events.Publisher
}

type Service struct {
	Deps
	cfg Config
	now func() time.Time
}

func NewService(deps Deps, cfg Config) *Service {
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Minute
	}
	if cfg.PresenceWindow <= 0 {
		cfg.PresenceWindow = 15 * time.Minute
	}
	return &Service{Deps: deps, cfg: cfg, now: time.Now}
}

// DetectionRef points at the detection that triggered a call
type DetectionRef struct {
	DetectionID *string
	CameraID    string
	ImagePath   *string
	DetectedAt  time.Time
	Confidence  float64
}

// ChannelResult is the outcome of one channel of the owner notification
type ChannelResult struct {
	Channel models.Channel        `json:"channel"`
	Status  models.DeliveryStatus `json:"status,omitempty"`
	LogID   string                `json:"logId,omitempty"`
	Skipped bool                  `json:"skipped,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// DispatchSummary reports owner notification separately from violation creation
type DispatchSummary struct {
	Attempted bool            `json:"attempted"`
	Success   bool            `json:"success"`
	Channels  []ChannelResult `json:"channels,omitempty"`
}

// Outcome of RecordDetection. Violation is nil when the plate could not be
// read; Registered and Dispatch are only filled for newly created violations.
type Outcome struct {
	Violation  *models.Violation `json:"violation"`
	Created    bool              `json:"created"`
	Escalated  bool              `json:"escalated"`
	Registered bool              `json:"registered"`
	Dispatch   DispatchSummary   `json:"dispatch"`
}

// ValidateSighting normalizes the plate and location of a sighting.
// Sentinel plates are valid: they escalate instead of creating a violation.
func ValidateSighting(plate, locationID string) (string, string, error) {
	const op = "lifecycle.ValidateSighting"

	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return "", "", apperr.Validation(op, "location is required")
	}
	plate = models.NormalizePlate(plate)
	if models.IsSentinelPlate(plate) {
		return plate, locationID, nil
	}
	if len(plate) > maxPlateLength || !platePattern.MatchString(plate) {
		return "", "", apperr.Validation(op, "invalid plate number %q", plate)
	}
	return plate, locationID, nil
}

// RecordDetection creates a warning for the plate at the location, or extends
// the grace period of the active one. Unreadable plates escalate to the
// authority instead. Owner notification failures never undo the creation.
func (s *Service) RecordDetection(ctx context.Context, plate, locationID string, ref DetectionRef) (*Outcome, error) {
	plate, locationID, err := ValidateSighting(plate, locationID)
	if err != nil {
		return nil, err
	}
	if models.IsSentinelPlate(plate) {
		return s.escalateUnreadable(ctx, plate, locationID, ref)
	}

	now := s.now()
	detectedAt := ref.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = now
	}

	v, created, err := s.Violations.UpsertActive(ctx, plate, locationID, detectedAt, now.Add(s.cfg.GracePeriod), ref.DetectionID)
	if err != nil {
		return nil, err
	}

	entry := logrus.WithFields(logrus.Fields{"violation_id": v.ID, "plate": plate, "location_id": locationID})
	out := &Outcome{Violation: v, Created: created}

	if !created {
		metrics.ViolationExtensions.Inc()
		entry.Debug("⏳ [LIFECYCLE] Grace period extended")
		s.publish(ctx, events.ViolationExtended, v, nil)
		return out, nil
	}

	metrics.ViolationTransitions.WithLabelValues(string(models.ViolationWarning)).Inc()
	entry.Info("🚨 [LIFECYCLE] New parking violation warning")

	reason := ReasonUnregistered
	vehicle, err := s.Registry.LookupByPlate(ctx, plate)
	switch {
	case err != nil:
		reason = ReasonRegistryFailed
		entry.WithError(err).Error("❌ [LIFECYCLE] Vehicle registry lookup failed")
	case vehicle != nil:
		reason = ReasonRegistered
		out.Registered = true
		out.Dispatch = s.notifyOwner(ctx, v, vehicle)
	}

	payload := map[string]interface{}{
		"dispatchAttempted": out.Dispatch.Attempted,
		"dispatchSuccess":   out.Dispatch.Success,
		"cameraId":          ref.CameraID,
	}
	if vehicle != nil {
		payload["ownerName"] = vehicle.OwnerName
	}
	// Raised for every new violation, regardless of user preferences
	if _, err := s.raise(ctx, &models.AuthorityAlert{
		Type:        models.AlertVehicleDetected,
		PlateNumber: plate,
		LocationID:  locationID,
		Reason:      reason,
		ViolationID: &v.ID,
		DetectionID: ref.DetectionID,
		ImagePath:   ref.ImagePath,
		Payload:     models.NewJSONB(payload),
	}); err != nil {
		entry.WithError(err).Error("❌ [LIFECYCLE] Failed to raise vehicle_detected alert")
	}

	s.publish(ctx, events.ViolationCreated, v, out.Dispatch)
	return out, nil
}

func (s *Service) escalateUnreadable(ctx context.Context, plate, locationID string, ref DetectionRef) (*Outcome, error) {
	reason := ReasonPlateAbsent
	if plate == models.PlateUnreadable {
		reason = ReasonPlateUnreadable
	}

	created, err := s.raise(ctx, &models.AuthorityAlert{
		Type:        models.AlertPlateNotVisible,
		PlateNumber: plate,
		LocationID:  locationID,
		Reason:      reason,
		DetectionID: ref.DetectionID,
		ImagePath:   ref.ImagePath,
		Payload:     models.NewJSONB(map[string]interface{}{"cameraId": ref.CameraID, "confidence": ref.Confidence}),
	})
	if err != nil {
		return nil, err
	}
	if created {
		logrus.WithField("location_id", locationID).Warn("👁️  [LIFECYCLE] Vehicle without readable plate, authority alerted")
	}
	return &Outcome{Escalated: true}, nil
}

// notifyOwner attempts every preferred channel; failures are recorded, not returned
func (s *Service) notifyOwner(ctx context.Context, v *models.Violation, vehicle *models.Vehicle) DispatchSummary {
	var summary DispatchSummary
	if vehicle.ContactNumber == nil || strings.TrimSpace(*vehicle.ContactNumber) == "" {
		return summary
	}

	message := ownerMessage(vehicle.OwnerName, v.PlateNumber, v.LocationID, s.cfg.GracePeriod)
	for _, ch := range vehicle.PreferredChannel.Channels() {
		summary.Attempted = true
		cr := ChannelResult{Channel: ch}

		res, err := s.Notifier.Dispatch(ctx, notify.Request{
			Channel:     ch,
			Recipient:   *vehicle.ContactNumber,
			Message:     message,
			ViolationID: &v.ID,
		})
		if res != nil {
			cr.Skipped = res.Skipped
			if res.Log != nil {
				cr.Status = res.Log.Status
				cr.LogID = res.Log.ID
			}
			if res.ProviderErr != nil {
				cr.Error = res.ProviderErr.Error()
			}
			if res.Success() {
				summary.Success = true
			}
		}
		if err != nil {
			cr.Error = err.Error()
			logrus.WithError(err).WithField("violation_id", v.ID).Error("❌ [LIFECYCLE] Owner notification failed")
		}
		summary.Channels = append(summary.Channels, cr)
	}
	return summary
}

func ownerMessage(owner, plate, locationID string, grace time.Duration) string {
	name := strings.TrimSpace(owner)
	if name == "" {
		name = "vehicle owner"
	}
	return fmt.Sprintf(
		"Hello %s, your vehicle %s is parked in a no-parking zone (%s). Please move it within %d minutes to avoid a citation.",
		name, plate, locationID, int(grace.Minutes()),
	)
}

// raise inserts the alert unless an unread duplicate exists and announces new ones
func (s *Service) raise(ctx context.Context, a *models.AuthorityAlert) (bool, error) {
	created, err := s.Alerts.RaiseOnce(ctx, a)
	if err != nil || !created {
		return created, err
	}
	metrics.AlertsRaised.WithLabelValues(string(a.Type)).Inc()
	if err := s.Events.Publish(ctx, events.Event{
		Type:        events.AlertRaised,
		ViolationID: deref(a.ViolationID),
		PlateNumber: a.PlateNumber,
		LocationID:  a.LocationID,
		At:          a.CreatedAt,
		Data:        *a,
	}); err != nil {
		logrus.WithError(err).WithField("alert_id", a.ID).Warn("⚠️ [LIFECYCLE] Failed to publish alert")
	}
	return true, nil
}

func (s *Service) publish(ctx context.Context, eventType string, v *models.Violation, data interface{}) {
	err := s.Events.Publish(ctx, events.Event{
		Type:        eventType,
		ViolationID: v.ID,
		PlateNumber: v.PlateNumber,
		LocationID:  v.LocationID,
		Status:      string(v.Status),
		At:          s.now(),
		Data:        data,
	})
	if err != nil {
		logrus.WithError(err).WithField("violation_id", v.ID).Warn("⚠️ [LIFECYCLE] Failed to publish event")
	}
}

// clear moves a warning to cleared. Already cleared or closed violations are
// left untouched; applied reports whether this call made the change.
func (s *Service) clear(ctx context.Context, v models.Violation, cause string) (bool, error) {
	applied, err := s.Violations.Transition(ctx, v.ID, models.ViolationCleared, map[string]interface{}{
		"closed_at":       s.now(),
		"resolution_note": cause,
	})
	if err != nil || !applied {
		return applied, err
	}

	metrics.ViolationTransitions.WithLabelValues(string(models.ViolationCleared)).Inc()
	logrus.WithFields(logrus.Fields{
		"violation_id": v.ID,
		"plate":        v.PlateNumber,
		"location_id":  v.LocationID,
		"cause":        cause,
	}).Info("✅ [LIFECYCLE] Violation cleared, vehicle left")

	v.Status = models.ViolationCleared
	v.ActiveKey = nil
	s.publish(ctx, events.ViolationCleared, &v, map[string]string{"cause": cause})
	return true, nil
}

// Issue turns a warning (or held) violation into a ticket
func (s *Service) Issue(ctx context.Context, id, ticketID string, fine decimal.NullDecimal) (*models.Violation, error) {
	const op = "lifecycle.Issue"
	if fine.Valid && fine.Decimal.IsNegative() {
		return nil, apperr.Validation(op, "fine amount must not be negative")
	}
	set := map[string]interface{}{"issued_at": s.now()}
	if t := strings.TrimSpace(ticketID); t != "" {
		set["ticket_id"] = t
	}
	if fine.Valid {
		set["fine_amount"] = fine
	}
	return s.act(ctx, op, id, models.ViolationIssued, set, events.ViolationIssued)
}

// Cancel voids an issued ticket
func (s *Service) Cancel(ctx context.Context, id, reason string) (*models.Violation, error) {
	set := map[string]interface{}{"closed_at": s.now()}
	if r := strings.TrimSpace(reason); r != "" {
		set["resolution_note"] = r
	}
	return s.act(ctx, "lifecycle.Cancel", id, models.ViolationCancelled, set, events.ViolationCancelled)
}

// Resolve closes a warning (or held) violation without a ticket
func (s *Service) Resolve(ctx context.Context, id, note string) (*models.Violation, error) {
	set := map[string]interface{}{"closed_at": s.now()}
	if n := strings.TrimSpace(note); n != "" {
		set["resolution_note"] = n
	}
	return s.act(ctx, "lifecycle.Resolve", id, models.ViolationResolved, set, events.ViolationResolved)
}

// Hold parks a warning as pending: the monitors stop acting on it while an
// officer is on the way, and it keeps its active slot
func (s *Service) Hold(ctx context.Context, id string) (*models.Violation, error) {
	return s.act(ctx, "lifecycle.Hold", id, models.ViolationPending, nil, events.ViolationPending)
}

func (s *Service) act(ctx context.Context, op, id string, to models.ViolationStatus, set map[string]interface{}, eventType string) (*models.Violation, error) {
	applied, err := s.Violations.Transition(ctx, id, to, set)
	if err != nil {
		return nil, err
	}

	v, err := s.Violations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperr.Errorf(apperr.KindConflict, op, "violation %s is %s and cannot become %s", id, v.Status, to)
	}

	metrics.ViolationTransitions.WithLabelValues(string(to)).Inc()
	logrus.WithFields(logrus.Fields{"violation_id": id, "status": to}).Info("📝 [LIFECYCLE] Violation updated by authority")
	s.publish(ctx, eventType, v, nil)
	return v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
