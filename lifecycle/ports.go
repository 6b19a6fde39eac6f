package lifecycle

import (
	"context"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/notify"
)

// ViolationStore is the violation persistence the lifecycle needs.
// Implemented by store.ViolationRepo.
type ViolationStore interface {
	UpsertActive(ctx context.Context, plate, locationID string, detectedAt, expiresAt time.Time, detectionID *string) (*models.Violation, bool, error)
	Get(ctx context.Context, id string) (*models.Violation, error)
	ListWarnings(ctx context.Context, after models.Cursor, limit int) ([]models.Violation, error)
	ListWarningsAt(ctx context.Context, locationID string) ([]models.Violation, error)
	Transition(ctx context.Context, id string, to models.ViolationStatus, set map[string]interface{}) (bool, error)
}

// AlertStore raises deduplicated authority alerts
type AlertStore interface {
	RaiseOnce(ctx context.Context, a *models.AuthorityAlert) (bool, error)
}

// VehicleRegistry returns nil, nil for unregistered plates
type VehicleRegistry interface {
	LookupByPlate(ctx context.Context, plate string) (*models.Vehicle, error)
}

// Preferences reports whether a user wants alerts of a type; no row means yes
type Preferences interface {
	IsEnabled(ctx context.Context, userID string, alertType models.AlertType) (bool, error)
}

// Recipients lists the authority users that receive targeted alerts
type Recipients interface {
	AuthorityRecipients(ctx context.Context) ([]string, error)
}

// Notifier makes one owner notification attempt
type Notifier interface {
	Dispatch(ctx context.Context, req notify.Request) (*notify.Result, error)
}
