package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleAlertWebSocket handles GET /ws/alerts
func (h *Handler) HandleAlertWebSocket(c *gin.Context) {
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert hub not initialized"})
		return
	}

	conn, err := services.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ [API] WebSocket upgrade failed")
		return
	}

	client := services.NewAlertClient(h.Hub, conn, c.GetString("userID"), c.ClientIP())
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	status := http.StatusOK

	if h.DBPing != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.DBPing(ctx); err != nil {
			resp["status"] = "degraded"
			resp["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp["database"] = "ok"
		}
	}
	if h.NATS != nil {
		resp["nats"] = h.NATS.GetStats()
	}
	if h.Hub != nil {
		resp["alertHub"] = h.Hub.Stats()
	}
	c.JSON(status, resp)
}
