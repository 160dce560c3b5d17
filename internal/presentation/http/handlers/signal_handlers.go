package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
)

// SignalHandlers record and list node signals
type SignalHandlers struct {
	signalService *services.SignalService
	logger        *logging.ChanneledLogger
	perfTracker   *performance.Tracker
}

// NewSignalHandlers creates signal handlers with injected dependencies
func NewSignalHandlers(signalService *services.SignalService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SignalHandlers {
	return &SignalHandlers{
		signalService: signalService,
		logger:        logger,
		perfTracker:   perfTracker,
	}
}

// PostSignal handles POST /api/v1/signals
func (h *SignalHandlers) PostSignal(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_signal_request", "system")
	defer marker.Complete()

	var req services.SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	signal, err := h.signalService.Record(c.Request.Context(), req)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, services.ErrInvalidSignal) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Behavior().Error("Failed to record signal", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record signal"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusCreated, signal)
}

// GetSignals handles GET /api/v1/signals?window=24h&limit=50
func (h *SignalHandlers) GetSignals(c *gin.Context) {
	marker := h.perfTracker.StartOperation("get_signals_request", "system")
	defer marker.Complete()

	window, err := time.ParseDuration(c.DefaultQuery("window", "24h"))
	if err != nil || window <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	signals, err := h.signalService.Recent(c.Request.Context(), window, limit)
	if err != nil {
		marker.SetError(err)
		h.logger.Behavior().Error("Failed to list signals", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signals"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}
