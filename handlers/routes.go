package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts every route on r
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/alerts", h.AuthMiddleware(), h.HandleAlertWebSocket)

	api := r.Group("/api")

	api.POST("/auth/login", h.Login)
	api.POST("/captures", h.IngestAuth(), h.PostCapture)
	api.POST("/notifications/callbacks/:channel", h.DeliveryCallback)

	protected := api.Group("")
	protected.Use(h.AuthMiddleware())
	{
		protected.POST("/violations/detections", h.PostDetection)
		protected.POST("/violations/removal-check", h.PostRemovalCheck)
		protected.GET("/violations", h.GetViolations)
		protected.GET("/violations/stats", h.GetViolationStats)
		protected.GET("/violations/:id", h.GetViolation)
		protected.PATCH("/violations/:id/issue", h.IssueViolation)
		protected.PATCH("/violations/:id/cancel", h.CancelViolation)
		protected.PATCH("/violations/:id/resolve", h.ResolveViolation)
		protected.PATCH("/violations/:id/hold", h.HoldViolation)

		protected.GET("/notifications", h.GetNotifications)
		protected.POST("/notifications/:id/retry", h.RetryNotification)

		protected.GET("/alerts", h.GetAlerts)
		protected.PATCH("/alerts/:id/read", h.MarkAlertRead)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})
}
