package handlers

import (
	"net/http"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/store"
	"github.com/gin-gonic/gin"
)

// GetAlerts handles GET /api/alerts - the caller's alerts plus broadcasts
func (h *Handler) GetAlerts(c *gin.Context) {
	f := store.AlertFilter{
		Type:        models.AlertType(c.Query("type")),
		RecipientID: c.GetString("userID"),
		UnreadOnly:  c.Query("unread") == "true",
	}
	f.Limit, f.Offset = pagination(c)

	alerts, total, err := h.Alerts.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

// MarkAlertRead handles PATCH /api/alerts/:id/read. Reading an alert lets the
// same condition raise a fresh one later.
func (h *Handler) MarkAlertRead(c *gin.Context) {
	a, err := h.Alerts.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
