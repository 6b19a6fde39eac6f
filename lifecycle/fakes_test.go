package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/notify"
	"github.com/Keeydi/LedgerMonitor-sub000/presence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memViolations mirrors the conditional semantics of the SQL repository
type memViolations struct {
	mu   sync.Mutex
	rows map[string]*models.Violation
}

func newMemViolations() *memViolations {
	return &memViolations{rows: map[string]*models.Violation{}}
}

func (m *memViolations) UpsertActive(ctx context.Context, plate, locationID string, detectedAt, expiresAt time.Time, detectionID *string) (*models.Violation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.ActiveKey(plate, locationID)
	for _, v := range m.rows {
		if v.ActiveKey != nil && *v.ActiveKey == key {
			exp := expiresAt
			v.WarningExpiresAt = &exp
			cp := *v
			return &cp, false, nil
		}
	}
	exp := expiresAt
	v := &models.Violation{
		ID:               uuid.New().String(),
		PlateNumber:      plate,
		LocationID:       locationID,
		Status:           models.ViolationWarning,
		DetectedAt:       detectedAt,
		WarningExpiresAt: &exp,
		ActiveKey:        &key,
		DetectionID:      detectionID,
	}
	m.rows[v.ID] = v
	cp := *v
	return &cp, true, nil
}

func (m *memViolations) Get(ctx context.Context, id string) (*models.Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "memViolations.Get", "violation %s not found", id)
	}
	cp := *v
	return &cp, nil
}

func (m *memViolations) ListWarnings(ctx context.Context, after models.Cursor, limit int) ([]models.Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Violation
	for _, v := range m.rows {
		if v.Status == models.ViolationWarning && after.Before(*v.WarningExpiresAt, v.ID) {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := *out[i].WarningExpiresAt, *out[j].WarningExpiresAt
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		return a.Before(b)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memViolations) ListWarningsAt(ctx context.Context, locationID string) ([]models.Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Violation
	for _, v := range m.rows {
		if v.Status == models.ViolationWarning && v.LocationID == locationID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memViolations) Transition(ctx context.Context, id string, to models.ViolationStatus, set map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok || !models.CanTransition(v.Status, to) {
		return false, nil
	}
	v.Status = to
	if !to.IsActive() {
		v.ActiveKey = nil
	}
	for k, val := range set {
		switch k {
		case "issued_at":
			t := val.(time.Time)
			v.IssuedAt = &t
		case "closed_at":
			t := val.(time.Time)
			v.ClosedAt = &t
		case "ticket_id":
			s := val.(string)
			v.TicketID = &s
		case "resolution_note":
			s := val.(string)
			v.ResolutionNote = &s
		case "fine_amount":
			v.FineAmount = val.(decimal.NullDecimal)
		}
	}
	return true, nil
}

func (m *memViolations) active(plate, locationID string) []models.Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Violation
	for _, v := range m.rows {
		if v.PlateNumber == plate && v.LocationID == locationID && v.Status.IsActive() {
			out = append(out, *v)
		}
	}
	return out
}

func (m *memViolations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memAlerts deduplicates on the open key like the unique index does
type memAlerts struct {
	mu     sync.Mutex
	alerts []models.AuthorityAlert
	open   map[string]bool
}

func newMemAlerts() *memAlerts {
	return &memAlerts{open: map[string]bool{}}
}

func (m *memAlerts) RaiseOnce(ctx context.Context, a *models.AuthorityAlert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.AlertOpenKey(a.Type, a.PlateNumber, a.LocationID, a.RecipientID)
	if m.open[key] {
		return false, nil
	}
	m.open[key] = true
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.OpenKey = &key
	m.alerts = append(m.alerts, *a)
	return true, nil
}

func (m *memAlerts) markAllRead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = map[string]bool{}
}

func (m *memAlerts) ofType(t models.AlertType) []models.AuthorityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuthorityAlert
	for _, a := range m.alerts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

type memRegistry map[string]*models.Vehicle

func (r memRegistry) LookupByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	return r[plate], nil
}

// memPrefs holds opt-outs: user -> disabled alert types
type memPrefs map[string][]models.AlertType

func (p memPrefs) IsEnabled(ctx context.Context, userID string, alertType models.AlertType) (bool, error) {
	for _, t := range p[userID] {
		if t == alertType {
			return false, nil
		}
	}
	return true, nil
}

type memRecipients []string

func (r memRecipients) AuthorityRecipients(ctx context.Context) ([]string, error) {
	return r, nil
}

// memPresence is a settable sightings table keyed by plate|location
type memPresence struct {
	mu    sync.Mutex
	seen  map[string]presence.Sighting
	fails bool
}

func newMemPresence() *memPresence {
	return &memPresence{seen: map[string]presence.Sighting{}}
}

func (p *memPresence) see(plate, locationID string, at time.Time, image string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	img := image
	p.seen[plate+"|"+locationID] = presence.Sighting{DetectionID: "d-" + plate, ImagePath: &img, SeenAt: at}
}

func (p *memPresence) LastSeen(ctx context.Context, plate, locationID string, since time.Time) (*presence.Sighting, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails {
		return nil, apperr.Errorf(apperr.KindPersistence, "memPresence.LastSeen", "index down")
	}
	s, ok := p.seen[plate+"|"+locationID]
	if !ok || s.SeenAt.Before(since) {
		return nil, nil
	}
	return &s, nil
}

// memLogs collects delivery-log rows written by the real dispatcher
type memLogs struct {
	mu   sync.Mutex
	rows []models.NotificationLog
}

func (m *memLogs) Create(ctx context.Context, n *models.NotificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *n)
	return nil
}

func (m *memLogs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type stubChannel struct {
	name models.Channel
	err  error
	mu   sync.Mutex
	sent int
}

func (c *stubChannel) Name() models.Channel { return c.name }

func (c *stubChannel) Send(ctx context.Context, to, body string) (notify.Receipt, error) {
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
	if c.err != nil {
		return notify.Receipt{}, c.err
	}
	return notify.Receipt{ProviderMessageID: "pm-1"}, nil
}
