package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/threshold/internal/presentation/http/middleware"
)

// SchedulerHandlers expose the tier promotion evaluator
type SchedulerHandlers struct {
	promotionService *services.PromotionService
	logger           *logging.ChanneledLogger
	perfTracker      *performance.Tracker
}

// NewSchedulerHandlers creates scheduler handlers with injected dependencies
func NewSchedulerHandlers(promotionService *services.PromotionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SchedulerHandlers {
	return &SchedulerHandlers{
		promotionService: promotionService,
		logger:           logger,
		perfTracker:      perfTracker,
	}
}

// PostRun handles POST /api/v1/scheduler/run. Rate limiting happens in
// middleware; trusted callers run as cron.
func (h *SchedulerHandlers) PostRun(c *gin.Context) {
	start := time.Now()
	trigger := services.TriggerManual
	if middleware.IsTrusted(c) {
		trigger = services.TriggerCron
	}
	marker := h.perfTracker.StartOperation("post_scheduler_run_request", trigger)
	defer marker.Complete()

	summary, err := h.promotionService.Run(c.Request.Context(), trigger)
	if err != nil {
		marker.SetError(err)
		h.logger.Scheduler().Error("Promotion cycle aborted", "trigger", trigger, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "promotion cycle aborted"})
		return
	}

	h.logger.Perf().Info("Performance for PostRun request",
		"duration", time.Since(start),
		"trigger", trigger,
		"insightsGenerated", summary.Results.InsightsGenerated)
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, summary)
}
