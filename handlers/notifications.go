package handlers

import (
	"io"
	"net/http"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/notify"
	"github.com/Keeydi/LedgerMonitor-sub000/store"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetNotifications handles GET /api/notifications
func (h *Handler) GetNotifications(c *gin.Context) {
	f := store.NotificationFilter{
		Status:      models.DeliveryStatus(c.Query("status")),
		Channel:     models.Channel(c.Query("channel")),
		ViolationID: c.Query("violationId"),
	}
	var err error
	if f.StartTime, f.EndTime, err = timeRange(c); err != nil {
		respondError(c, err)
		return
	}
	f.Limit, f.Offset = pagination(c)

	logs, total, err := h.Notifications.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": logs,
		"total":         total,
		"limit":         f.Limit,
		"offset":        f.Offset,
	})
}

// RetryNotification handles POST /api/notifications/:id/retry.
// A failed provider attempt is still a 200: success is reported in the body.
func (h *Handler) RetryNotification(c *gin.Context) {
	n, err := h.Retrier.ManualRetry(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notification": n,
		"success":      n.Status == models.DeliverySent || n.Status == models.DeliveryDelivered,
	})
}

// DeliveryCallback handles POST /api/notifications/callbacks/:channel
func (h *Handler) DeliveryCallback(c *gin.Context) {
	channel := models.Channel(c.Param("channel"))

	var (
		report notify.DeliveryReport
		err    error
	)
	switch channel {
	case models.ChannelSMS:
		if perr := c.Request.ParseForm(); perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form body"})
			return
		}
		report, err = notify.ParseSMSReport(c.Request.Form)
	case models.ChannelViber:
		body, rerr := io.ReadAll(io.LimitReader(c.Request.Body, 64*1024))
		if rerr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		report, err = notify.ParseViberReport(body)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown channel"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.Notifications.MarkDelivery(c.Request.Context(), channel, report.ProviderMessageID, report.Status, report.Detail, report.At)
	if err != nil {
		respondError(c, err)
		return
	}
	if !updated {
		logrus.WithFields(logrus.Fields{"channel": channel, "provider_message_id": report.ProviderMessageID}).
			Warn("⚠️ [API] Delivery report for unknown message")
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
