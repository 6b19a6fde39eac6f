// Package handlers exposes the violation engine over HTTP
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/ingest"
	"github.com/Keeydi/LedgerMonitor-sub000/lifecycle"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/natsserver"
	"github.com/Keeydi/LedgerMonitor-sub000/services"
	"github.com/Keeydi/LedgerMonitor-sub000/store"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Lifecycle is the violation engine as seen by the API
type Lifecycle interface {
	RecordDetection(ctx context.Context, plate, locationID string, ref lifecycle.DetectionRef) (*lifecycle.Outcome, error)
	CheckRemoval(ctx context.Context, locationID string, detectedPlates []string) (int, error)
	Issue(ctx context.Context, id, ticketID string, fine decimal.NullDecimal) (*models.Violation, error)
	Cancel(ctx context.Context, id, reason string) (*models.Violation, error)
	Resolve(ctx context.Context, id, note string) (*models.Violation, error)
	Hold(ctx context.Context, id string) (*models.Violation, error)
}

type CaptureProcessor interface {
	Process(ctx context.Context, c ingest.Capture) (*ingest.Result, error)
}

type ViolationQueries interface {
	Get(ctx context.Context, id string) (*models.Violation, error)
	List(ctx context.Context, f store.ViolationFilter) ([]models.Violation, int64, error)
	Stats(ctx context.Context) (map[models.ViolationStatus]int64, error)
}

type DetectionWriter interface {
	Create(ctx context.Context, detections []models.Detection) error
}

type PresenceRecorder interface {
	Touch(ctx context.Context, d models.Detection) error
}

type NotificationQueries interface {
	List(ctx context.Context, f store.NotificationFilter) ([]models.NotificationLog, int64, error)
	MarkDelivery(ctx context.Context, channel models.Channel, providerMessageID string, status models.DeliveryStatus, detail string, at time.Time) (bool, error)
}

type Retrier interface {
	ManualRetry(ctx context.Context, logID string) (*models.NotificationLog, error)
}

type AlertQueries interface {
	List(ctx context.Context, f store.AlertFilter) ([]models.AuthorityAlert, int64, error)
	MarkRead(ctx context.Context, id string) (*models.AuthorityAlert, error)
}

type Users interface {
	ByUsername(ctx context.Context, username string) (*models.User, error)
}

// Handler carries the collaborators of every route
type Handler struct {
	Lifecycle     Lifecycle
	Captures      CaptureProcessor
	Violations    ViolationQueries
	Detections    DetectionWriter
	Presence      PresenceRecorder
	Notifications NotificationQueries
	Retrier       Retrier
	Alerts        AlertQueries
	Users         Users
	Hub           *services.AlertHub
	NATS          *natsserver.EmbeddedNATS
	DBPing        func(ctx context.Context) error

	JWTSecret     []byte
	JWTExpiration time.Duration
	IngestToken   string
}

// respondError writes err with the status of its kind. Internal details of
// persistence failures stay in the log.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("❌ [API] Request failed")
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// pagination reads limit/offset; limit defaults to 100 and is capped at 500
func pagination(c *gin.Context) (limit, offset int) {
	limit = store.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return store.ClampLimit(limit), offset
}

// timeRange reads RFC3339 startTime/endTime
func timeRange(c *gin.Context) (start, end *time.Time, err error) {
	if s := c.Query("startTime"); s != "" {
		t, perr := time.Parse(time.RFC3339, s)
		if perr != nil {
			return nil, nil, apperr.Validation("handlers.timeRange", "startTime must be RFC3339")
		}
		start = &t
	}
	if s := c.Query("endTime"); s != "" {
		t, perr := time.Parse(time.RFC3339, s)
		if perr != nil {
			return nil, nil, apperr.Validation("handlers.timeRange", "endTime must be RFC3339")
		}
		end = &t
	}
	return start, end, nil
}
