package lifecycle

import (
	"context"
	"sync"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/sirupsen/logrus"
)

const causeNotSeen = "vehicle not seen within presence window"

// SweepReport summarises one expiry sweep
type SweepReport struct {
	Checked   int
	Cleared   int
	Escalated int
	Failed    int
}

// ExpiryMonitor walks active warnings: vehicles that left are cleared,
// vehicles still present past their grace period are escalated to the authority.
// Each sweep resumes after the last row of the previous one and wraps
// around once the end is reached.
type ExpiryMonitor struct {
	svc   *Service
	batch int

	mu     sync.Mutex
	cursor models.Cursor
}

func NewExpiryMonitor(svc *Service, batch int) *ExpiryMonitor {
	if batch <= 0 {
		batch = 200
	}
	return &ExpiryMonitor{svc: svc, batch: batch}
}

// RunOnce adapts Sweep to scheduler.Func
func (m *ExpiryMonitor) RunOnce(ctx context.Context) error {
	report, err := m.Sweep(ctx)
	if err != nil {
		return err
	}
	if report.Cleared > 0 || report.Escalated > 0 || report.Failed > 0 {
		logrus.Infof("🔍 [EXPIRY] Sweep: %d checked, %d cleared, %d escalated, %d failed",
			report.Checked, report.Cleared, report.Escalated, report.Failed)
	}
	return nil
}

// Sweep processes one batch of warnings, soonest expiry first.
// Absence wins over expiry: a vehicle that left is cleared, never escalated.
func (m *ExpiryMonitor) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	m.mu.Lock()
	defer m.mu.Unlock()

	warnings, err := m.svc.Violations.ListWarnings(ctx, m.cursor, m.batch)
	if err != nil {
		return report, err
	}
	next := models.Cursor{}
	if len(warnings) == m.batch {
		last := warnings[len(warnings)-1]
		next = models.Cursor{At: *last.WarningExpiresAt, ID: last.ID}
	}

	now := m.svc.now()
	since := now.Add(-m.svc.cfg.PresenceWindow)
	var recipients []string
	recipientsLoaded := false

	for _, v := range warnings {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		entry := logrus.WithFields(logrus.Fields{"violation_id": v.ID, "plate": v.PlateNumber, "location_id": v.LocationID})

		sighting, err := m.svc.Presence.LastSeen(ctx, v.PlateNumber, v.LocationID, since)
		if err != nil {
			// Unknown presence never clears a violation
			entry.WithError(err).Error("❌ [EXPIRY] Presence lookup failed")
			report.Failed++
			continue
		}

		if sighting == nil {
			applied, err := m.svc.clear(ctx, v, causeNotSeen)
			if err != nil {
				entry.WithError(err).Error("❌ [EXPIRY] Failed to clear violation")
				report.Failed++
			} else if applied {
				report.Cleared++
			}
			continue
		}

		if v.WarningExpiresAt == nil || now.Before(*v.WarningExpiresAt) {
			continue
		}

		if !recipientsLoaded {
			recipients, err = m.svc.Recipients.AuthorityRecipients(ctx)
			if err != nil {
				return report, err
			}
			recipientsLoaded = true
		}

		for _, userID := range recipients {
			enabled, err := m.svc.Preferences.IsEnabled(ctx, userID, models.AlertWarningExpired)
			if err != nil {
				entry.WithError(err).WithField("user_id", userID).Error("❌ [EXPIRY] Preference lookup failed")
				report.Failed++
				continue
			}
			if !enabled {
				continue
			}

			recipient := userID
			detectionID := sighting.DetectionID
			created, err := m.svc.raise(ctx, &models.AuthorityAlert{
				Type:        models.AlertWarningExpired,
				RecipientID: &recipient,
				PlateNumber: v.PlateNumber,
				LocationID:  v.LocationID,
				Reason:      ReasonStillPresent,
				ViolationID: &v.ID,
				DetectionID: &detectionID,
				ImagePath:   sighting.ImagePath,
				Payload: models.NewJSONB(map[string]interface{}{
					"warningExpiresAt": v.WarningExpiresAt,
					"lastSeenAt":       sighting.SeenAt,
				}),
			})
			if err != nil {
				entry.WithError(err).Error("❌ [EXPIRY] Failed to raise warning_expired alert")
				report.Failed++
				continue
			}
			if created {
				report.Escalated++
				entry.WithField("user_id", userID).Warn("⏰ [EXPIRY] Grace period over, vehicle still present")
			}
		}
	}

	m.cursor = next
	return report, nil
}
