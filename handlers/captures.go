package handlers

import (
	"net/http"

	"github.com/Keeydi/LedgerMonitor-sub000/ingest"
	"github.com/Keeydi/LedgerMonitor-sub000/metrics"
	"github.com/gin-gonic/gin"
)

// PostCapture handles POST /api/captures - one analyzed frame from the pipeline
func (h *Handler) PostCapture(c *gin.Context) {
	var capture ingest.Capture
	if err := c.ShouldBindJSON(&capture); err != nil {
		metrics.CapturesIngested.WithLabelValues("http", "invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.Captures.Process(c.Request.Context(), capture)
	if err != nil {
		metrics.CapturesIngested.WithLabelValues("http", "error").Inc()
		respondError(c, err)
		return
	}
	metrics.CapturesIngested.WithLabelValues("http", "ok").Inc()
	c.JSON(http.StatusOK, res)
}
