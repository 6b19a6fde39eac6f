package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/lifecycle"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type DetectionRequest struct {
	PlateNumber string     `json:"plateNumber" binding:"required"`
	LocationID  string     `json:"locationId" binding:"required"`
	CameraID    string     `json:"cameraId"`
	ImagePath   *string    `json:"imagePath"`
	Confidence  float64    `json:"confidence"`
	DetectedAt  *time.Time `json:"detectedAt"`
}

// PostDetection handles POST /api/violations/detections.
// The sighting is stored like a pipeline detection so presence checks see it.
func (h *Handler) PostDetection(c *gin.Context) {
	var req DetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	ctx := c.Request.Context()

	plate, locationID, err := lifecycle.ValidateSighting(req.PlateNumber, req.LocationID)
	if err != nil {
		respondError(c, err)
		return
	}

	detectedAt := time.Now()
	if req.DetectedAt != nil {
		detectedAt = *req.DetectedAt
	}

	d := models.Detection{
		ID:          uuid.New().String(),
		CameraID:    req.CameraID,
		LocationID:  locationID,
		PlateNumber: plate,
		ObjectClass: models.ObjectVehicle,
		Confidence:  req.Confidence,
		DetectedAt:  detectedAt,
		ImagePath:   req.ImagePath,
	}
	if err := h.Detections.Create(ctx, []models.Detection{d}); err != nil {
		respondError(c, err)
		return
	}
	if err := h.Presence.Touch(ctx, d); err != nil {
		logrus.WithError(err).Warn("⚠️ [API] Presence update failed")
	}

	out, err := h.Lifecycle.RecordDetection(ctx, plate, locationID, lifecycle.DetectionRef{
		DetectionID: &d.ID,
		CameraID:    req.CameraID,
		ImagePath:   req.ImagePath,
		DetectedAt:  detectedAt,
		Confidence:  req.Confidence,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

type RemovalCheckRequest struct {
	LocationID     string   `json:"locationId" binding:"required"`
	DetectedPlates []string `json:"detectedPlates"`
}

// PostRemovalCheck handles POST /api/violations/removal-check
func (h *Handler) PostRemovalCheck(c *gin.Context) {
	var req RemovalCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	cleared, err := h.Lifecycle.CheckRemoval(c.Request.Context(), req.LocationID, req.DetectedPlates)
	if err != nil && cleared == 0 {
		respondError(c, err)
		return
	}
	resp := gin.H{"cleared": cleared}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// GetViolations handles GET /api/violations
func (h *Handler) GetViolations(c *gin.Context) {
	f := store.ViolationFilter{
		Status:      models.ViolationStatus(c.Query("status")),
		LocationID:  c.Query("locationId"),
		PlateNumber: c.Query("plateNumber"),
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
		return
	}
	var err error
	if f.StartTime, f.EndTime, err = timeRange(c); err != nil {
		respondError(c, err)
		return
	}
	f.Limit, f.Offset = pagination(c)

	violations, total, err := h.Violations.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"violations": violations,
		"total":      total,
		"limit":      f.Limit,
		"offset":     f.Offset,
	})
}

// GetViolation handles GET /api/violations/:id
func (h *Handler) GetViolation(c *gin.Context) {
	v, err := h.Violations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// GetViolationStats handles GET /api/violations/stats
func (h *Handler) GetViolationStats(c *gin.Context) {
	byStatus, err := h.Violations.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	var total, active int64
	for status, n := range byStatus {
		total += n
		if status.IsActive() {
			active += n
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"active":   active,
		"byStatus": byStatus,
	})
}

type IssueRequest struct {
	TicketID   string  `json:"ticketId"`
	FineAmount *string `json:"fineAmount"`
}

// IssueViolation handles PATCH /api/violations/:id/issue
func (h *Handler) IssueViolation(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var fine decimal.NullDecimal
	if req.FineAmount != nil {
		amount, err := decimal.NewFromString(*req.FineAmount)
		if err != nil {
			respondError(c, apperr.Validation("handlers.IssueViolation", "fineAmount must be a decimal number"))
			return
		}
		fine = decimal.NewNullDecimal(amount)
	}

	v, err := h.Lifecycle.Issue(c.Request.Context(), c.Param("id"), req.TicketID, fine)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type NoteRequest struct {
	Note string `json:"note"`
}

// CancelViolation handles PATCH /api/violations/:id/cancel
func (h *Handler) CancelViolation(c *gin.Context) {
	var req NoteRequest
	_ = c.ShouldBindJSON(&req)

	v, err := h.Lifecycle.Cancel(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// ResolveViolation handles PATCH /api/violations/:id/resolve
func (h *Handler) ResolveViolation(c *gin.Context) {
	var req NoteRequest
	_ = c.ShouldBindJSON(&req)

	v, err := h.Lifecycle.Resolve(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// HoldViolation handles PATCH /api/violations/:id/hold
func (h *Handler) HoldViolation(c *gin.Context) {
	v, err := h.Lifecycle.Hold(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
