package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/application/container"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/persistence/database"
)

// HealthHandlers report service health
type HealthHandlers struct {
	container *container.Container
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(container *container.Container) *HealthHandlers {
	return &HealthHandlers{container: container}
}

// GetHealth handles GET /api/v1/health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "ok"
	if err := database.VerifyConnection(ctx, h.container.DB.DB); err != nil {
		h.container.Logger.Database().Error("Health check ping failed", "error", err.Error())
		status = http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}

	c.JSON(status, gin.H{
		"status":            http.StatusText(status),
		"database":          dbStatus,
		"performance":       h.container.PerfTracker.Health(),
		"activeSessions":    h.container.SessionService.ActiveCount(),
		"thresholdsVersion": h.container.Thresholds.Version,
		"timestamp":         time.Now().UTC(),
	})
}
