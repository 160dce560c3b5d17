package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/domain/consequence"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
)

// maxEventBatch bounds the events accepted in one request; maxEventBodyBytes
// bounds the request body read to decode them.
const (
	maxEventBatch     = 200
	maxEventBodyBytes = 256 << 10
)

// SessionHandlers serve the live session endpoints
type SessionHandlers struct {
	sessionService *services.SessionService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// EventBatchRequest is the body of POST /sessions/:id/events
type EventBatchRequest struct {
	Events []services.RawEvent `json:"events" binding:"required"`
}

// ConsequenceRequest is the body of POST /sessions/:id/consequences
type ConsequenceRequest struct {
	Trigger   consequence.TriggerType `json:"trigger" binding:"required"`
	ContentID string                  `json:"contentId,omitempty"`
}

// NewSessionHandlers creates session handlers with injected dependencies
func NewSessionHandlers(sessionService *services.SessionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionHandlers {
	return &SessionHandlers{
		sessionService: sessionService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// PostEvents handles POST /api/v1/sessions/:id/events
func (h *SessionHandlers) PostEvents(c *gin.Context) {
	sessionID := c.Param("id")
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_events_request", sessionID)
	defer marker.Complete()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBodyBytes)

	var req EventBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetError(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large", "maxBytes": maxEventBodyBytes})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}
	if len(req.Events) > maxEventBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many events in batch", "max": maxEventBatch})
		return
	}

	result, err := h.sessionService.Ingest(c.Request.Context(), sessionID, req.Events)
	if err != nil {
		marker.SetError(err)
		h.sessionError(c, "ingest events", err)
		return
	}

	h.logger.Perf().Info("Performance for PostEvents request",
		"duration", time.Since(start),
		"sessionId", sessionID,
		"accepted", result.Accepted,
		"rejected", result.Rejected)
	marker.AddMetadata("accepted", result.Accepted)
	marker.SetSuccess(true)

	c.JSON(http.StatusAccepted, result)
}

// GetState handles GET /api/v1/sessions/:id/state
func (h *SessionHandlers) GetState(c *gin.Context) {
	sessionID := c.Param("id")
	marker := h.perfTracker.StartOperation("get_state_request", sessionID)
	defer marker.Complete()

	view, err := h.sessionService.State(sessionID)
	if err != nil {
		marker.SetError(err)
		h.sessionError(c, "read state", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, view)
}

// GetMetrics handles GET /api/v1/sessions/:id/metrics
func (h *SessionHandlers) GetMetrics(c *gin.Context) {
	sessionID := c.Param("id")
	marker := h.perfTracker.StartOperation("get_metrics_request", sessionID)
	defer marker.Complete()

	view, err := h.sessionService.Metrics(sessionID)
	if err != nil {
		marker.SetError(err)
		h.sessionError(c, "read metrics", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, view)
}

// PostEnd handles POST /api/v1/sessions/:id/end - final flush on page unload
func (h *SessionHandlers) PostEnd(c *gin.Context) {
	sessionID := c.Param("id")
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_end_request", sessionID)
	defer marker.Complete()

	view, err := h.sessionService.End(c.Request.Context(), sessionID)
	if err != nil {
		marker.SetError(err)
		h.sessionError(c, "end session", err)
		return
	}

	h.logger.Perf().Info("Performance for PostEnd request", "duration", time.Since(start), "sessionId", sessionID)
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"success": true, "session": view})
}

// PostConsequence handles POST /api/v1/sessions/:id/consequences
func (h *SessionHandlers) PostConsequence(c *gin.Context) {
	sessionID := c.Param("id")
	marker := h.perfTracker.StartOperation("post_consequence_request", sessionID)
	defer marker.Complete()

	var req ConsequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}
	if !req.Trigger.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trigger"})
		return
	}

	view, signals, err := h.sessionService.Trigger(sessionID, req.Trigger, req.ContentID)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, services.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if signals == nil {
		signals = []consequence.Signal{}
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"session": view, "signals": signals})
}

func (h *SessionHandlers) sessionError(c *gin.Context, operation string, err error) {
	if errors.Is(err, services.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.logger.Session().Error("Session request failed", "operation", operation, "sessionId", c.Param("id"), "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + operation})
}
