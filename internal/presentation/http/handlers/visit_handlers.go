// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
)

// VisitHandlers opens visits and their live sessions
type VisitHandlers struct {
	sessionService *services.SessionService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewVisitHandlers creates visit handlers with injected dependencies
func NewVisitHandlers(sessionService *services.SessionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *VisitHandlers {
	return &VisitHandlers{
		sessionService: sessionService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// PostVisit handles POST /api/v1/visits - resolves the visitor and starts a live session
func (h *VisitHandlers) PostVisit(c *gin.Context) {
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_visit_request", "system")
	defer marker.Complete()
	h.logger.Session().Debug("Received post visit request", "method", c.Request.Method, "path", c.Request.URL.Path)

	// An empty body is a visit with nothing known about the environment.
	var req services.VisitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Session().Error("Visit request JSON binding failed", "error", err.Error())
			marker.SetError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
			return
		}
	}

	result, err := h.sessionService.StartVisit(c.Request.Context(), req)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, services.ErrSessionLimit) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many live sessions"})
			return
		}
		h.logger.Session().Error("Failed to start visit", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start visit"})
		return
	}

	h.logger.Perf().Info("Performance for PostVisit request",
		"duration", time.Since(start),
		"success", true,
		"returning", result.Returning)
	marker.SetSuccess(true)

	status := http.StatusCreated
	if result.Returning {
		status = http.StatusOK
	}
	c.JSON(status, result)
}
