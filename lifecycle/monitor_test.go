package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/events"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyCaptureClearsWarning(t *testing.T) {
	h := newHarness(t)
	v := h.detect(t, "ABC123", "ZONE-A").Violation

	n, err := h.svc.CheckRemoval(context.Background(), "ZONE-A", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := h.violations.Get(context.Background(), v.ID)
	assert.Equal(t, models.ViolationCleared, got.Status)
	assert.Nil(t, got.ActiveKey)
}

func TestRemovalCheckIsIdempotent(t *testing.T) {
	h := newHarness(t)
	v := h.detect(t, "ABC123", "ZONE-A").Violation

	for i := 0; i < 2; i++ {
		_, err := h.svc.CheckRemoval(context.Background(), "ZONE-A", []string{})
		require.NoError(t, err)
	}

	got, _ := h.violations.Get(context.Background(), v.ID)
	assert.Equal(t, models.ViolationCleared, got.Status)
}

func TestRemovalCheckScopesToLocationAndPlates(t *testing.T) {
	h := newHarness(t)
	stays := h.detect(t, "ABC123", "ZONE-A").Violation
	leaves := h.detect(t, "XYZ789", "ZONE-A").Violation
	elsewhere := h.detect(t, "QQQ111", "ZONE-B").Violation

	n, err := h.svc.CheckRemoval(context.Background(), "ZONE-A", []string{"abc 123"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]models.ViolationStatus{
		stays.ID:     models.ViolationWarning,
		leaves.ID:    models.ViolationCleared,
		elsewhere.ID: models.ViolationWarning,
	} {
		got, _ := h.violations.Get(context.Background(), id)
		assert.Equal(t, want, got.Status)
	}
}

func TestMonitorsNeverTouchClosedViolations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	issued := h.detect(t, "ABC123", "ZONE-A").Violation
	_, err := h.svc.Issue(ctx, issued.ID, "T-1", decimal.NullDecimal{})
	require.NoError(t, err)

	resolved := h.detect(t, "XYZ789", "ZONE-A").Violation
	_, err = h.svc.Resolve(ctx, resolved.ID, "")
	require.NoError(t, err)

	held := h.detect(t, "QQQ111", "ZONE-A").Violation
	_, err = h.svc.Hold(ctx, held.ID)
	require.NoError(t, err)

	h.now = t0.Add(3 * time.Hour)
	_, err = h.svc.CheckRemoval(ctx, "ZONE-A", nil)
	require.NoError(t, err)
	_, err = h.monitor.Sweep(ctx)
	require.NoError(t, err)

	for id, want := range map[string]models.ViolationStatus{
		issued.ID:   models.ViolationIssued,
		resolved.ID: models.ViolationResolved,
		held.ID:     models.ViolationPending,
	} {
		got, _ := h.violations.Get(ctx, id)
		assert.Equal(t, want, got.Status)
	}
	assert.Empty(t, h.alerts.ofType(models.AlertWarningExpired))
}

func TestSweepClearsVehicleThatLeft(t *testing.T) {
	h := newHarness(t)
	v := h.detect(t, "ABC123", "ZONE-A").Violation

	// Last sighting at t0; the window no longer covers it
	h.now = t0.Add(16 * time.Minute)
	report, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cleared)

	got, _ := h.violations.Get(context.Background(), v.ID)
	assert.Equal(t, models.ViolationCleared, got.Status)
}

func TestSweepKeepsPresentVehicleBeforeExpiry(t *testing.T) {
	h := newHarness(t)
	v := h.detect(t, "ABC123", "ZONE-A").Violation

	h.now = t0.Add(10 * time.Minute)
	report, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Cleared)
	assert.Zero(t, report.Escalated)

	got, _ := h.violations.Get(context.Background(), v.ID)
	assert.Equal(t, models.ViolationWarning, got.Status)
}

func TestExpiredWarningEscalatesOnceWhileUnread(t *testing.T) {
	h := newHarness(t)
	h.detect(t, "ABC123", "ZONE-A")

	h.now = t0.Add(grace)
	h.presence.see("ABC123", "ZONE-A", h.now.Add(-time.Minute), "/uploads/latest.jpg")

	for i := 0; i < 3; i++ {
		_, err := h.monitor.Sweep(context.Background())
		require.NoError(t, err)
		h.now = h.now.Add(15 * time.Second)
	}

	alerts := h.alerts.ofType(models.AlertWarningExpired)
	require.Len(t, alerts, 2, "one per recipient with the preference enabled")
	recipients := []string{*alerts[0].RecipientID, *alerts[1].RecipientID}
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, recipients)
	assert.Equal(t, "/uploads/latest.jpg", *alerts[0].ImagePath)

	// Reading the alerts re-opens the slot for the next sweep
	h.alerts.markAllRead()
	_, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.alerts.ofType(models.AlertWarningExpired), 4)
}

func TestSweepReachesRowsBehindEscalatedWarnings(t *testing.T) {
	h := newHarness(t)
	h.monitor = NewExpiryMonitor(h.svc, 2)
	h.detect(t, "ABC123", "ZONE-A")
	h.detect(t, "XYZ789", "ZONE-A")
	h.now = t0.Add(time.Minute)
	left := h.detect(t, "QQQ111", "ZONE-A").Violation

	// The first two stay parked past their grace period; the third leaves
	h.now = t0.Add(grace + 2*time.Minute)
	h.presence.see("ABC123", "ZONE-A", h.now, "/uploads/a.jpg")
	h.presence.see("XYZ789", "ZONE-A", h.now, "/uploads/x.jpg")

	for i := 0; i < 2; i++ {
		_, err := h.monitor.Sweep(context.Background())
		require.NoError(t, err)
	}

	got, _ := h.violations.Get(context.Background(), left.ID)
	assert.Equal(t, models.ViolationCleared, got.Status)
}

func TestAbsenceWinsOverExpiry(t *testing.T) {
	h := newHarness(t)
	v := h.detect(t, "ABC123", "ZONE-A").Violation

	h.now = t0.Add(2 * grace)
	report, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cleared)
	assert.Zero(t, report.Escalated)

	got, _ := h.violations.Get(context.Background(), v.ID)
	assert.Equal(t, models.ViolationCleared, got.Status)
}

func TestPresenceFailureNeverClears(t *testing.T) {
	h := newHarness(t)
	v := h.detect(t, "ABC123", "ZONE-A").Violation
	h.presence.fails = true

	h.now = t0.Add(time.Hour)
	report, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	got, _ := h.violations.Get(context.Background(), v.ID)
	assert.Equal(t, models.ViolationWarning, got.Status)
}

func TestCheckRemovalRequiresLocation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CheckRemoval(context.Background(), "", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

// hangingSink never returns until the test ends, like a broker that accepts
// connections and never answers
type hangingSink struct{ release chan struct{} }

func (s hangingSink) Publish(ctx context.Context, e events.Event) error {
	<-s.release
	return nil
}

func (s hangingSink) Close() error { return nil }

func TestStalledExportDoesNotDelaySweep(t *testing.T) {
	h := newHarness(t)
	sink := hangingSink{release: make(chan struct{})}
	exporter := events.NewAsync(sink, 16, time.Second)
	defer func() {
		close(sink.release)
		_ = exporter.Close()
	}()
	h.svc.Events = exporter

	for _, plate := range []string{"ABC123", "XYZ789", "QQQ111"} {
		h.detect(t, plate, "ZONE-A")
	}

	h.now = t0.Add(16 * time.Minute)
	start := time.Now()
	report, err := h.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Cleared)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
