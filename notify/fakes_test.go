package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
)

// memLogs is an in-memory delivery-log table with the same conditional
// update semantics as the gorm repository
type memLogs struct {
	mu         sync.Mutex
	rows       map[string]*models.NotificationLog
	failCreate error
	// beforeApply runs inside ApplyAttempt before the condition is checked
	beforeApply func(row *models.NotificationLog)
}

func newMemLogs() *memLogs {
	return &memLogs{rows: map[string]*models.NotificationLog{}}
}

// Create and ApplyAttempt refuse a done context like gorm does
func (m *memLogs) Create(ctx context.Context, n *models.NotificationLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	cp := *n
	m.rows[n.ID] = &cp
	return nil
}

func (m *memLogs) Get(ctx context.Context, id string) (*models.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "memLogs.Get", "log %s not found", id)
	}
	cp := *row
	return &cp, nil
}

func (m *memLogs) ListRetryCandidates(ctx context.Context, maxRetries, limit int) ([]models.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationLog
	for _, row := range m.rows {
		if row.Status.Retryable() && row.RetryCount < maxRetries {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttemptAt().Before(out[j].LastAttemptAt()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLogs) ApplyAttempt(ctx context.Context, id string, expectedRetryCount int, updates map[string]interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	if m.beforeApply != nil {
		m.beforeApply(row)
	}
	if row.RetryCount != expectedRetryCount || !row.Status.Retryable() {
		return false, nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			row.Status = v.(models.DeliveryStatus)
		case "retry_count":
			row.RetryCount = v.(int)
		case "last_retry_at":
			t := v.(time.Time)
			row.LastRetryAt = &t
		case "delivered_at":
			t := v.(time.Time)
			row.DeliveredAt = &t
		case "error":
			if v == nil {
				row.Error = nil
			} else {
				s := v.(string)
				row.Error = &s
			}
		case "status_detail":
			s := v.(string)
			row.StatusDetail = &s
		case "provider_message_id":
			s := v.(string)
			row.ProviderMessageID = &s
		}
	}
	return true, nil
}

func (m *memLogs) only() *models.NotificationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		cp := *row
		return &cp
	}
	return nil
}

type fakeViolations map[string]models.ViolationStatus

func (f fakeViolations) Get(ctx context.Context, id string) (*models.Violation, error) {
	status, ok := f[id]
	if !ok {
		return nil, apperr.Errorf(apperr.KindNotFound, "fakeViolations.Get", "violation %s not found", id)
	}
	return &models.Violation{ID: id, Status: status}, nil
}

type fakeChannel struct {
	mu    sync.Mutex
	name  models.Channel
	send  func(ctx context.Context, to, body string) (Receipt, error)
	calls []string
}

func (f *fakeChannel) Name() models.Channel {
	return f.name
}

func (f *fakeChannel) Send(ctx context.Context, to, body string) (Receipt, error) {
	f.mu.Lock()
	f.calls = append(f.calls, to)
	f.mu.Unlock()
	if f.send == nil {
		return Receipt{ProviderMessageID: "msg-1"}, nil
	}
	return f.send(ctx, to, body)
}

func (f *fakeChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func failing(kind apperr.Kind) func(ctx context.Context, to, body string) (Receipt, error) {
	return func(ctx context.Context, to, body string) (Receipt, error) {
		return Receipt{}, apperr.Errorf(kind, "fakeChannel.Send", "provider said no")
	}
}
