package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/threshold/internal/presentation/http/middleware"
)

// VisitorHandlers serve insights and classification for one visitor
type VisitorHandlers struct {
	insightService    *services.InsightService
	classifierService *services.ClassifierService
	logger            *logging.ChanneledLogger
	perfTracker       *performance.Tracker
}

// NewVisitorHandlers creates visitor handlers with injected dependencies
func NewVisitorHandlers(insightService *services.InsightService, classifierService *services.ClassifierService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *VisitorHandlers {
	return &VisitorHandlers{
		insightService:    insightService,
		classifierService: classifierService,
		logger:            logger,
		perfTracker:       perfTracker,
	}
}

// GetInsights handles GET /api/v1/visitors/:id/insights
func (h *VisitorHandlers) GetInsights(c *gin.Context) {
	visitorID := c.Param("id")
	marker := h.perfTracker.StartOperation("get_insights_request", visitorID)
	defer marker.Complete()

	if !ownsVisitor(c, visitorID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	includeDelivered, _ := strconv.ParseBool(c.DefaultQuery("includeDelivered", "false"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	insights, err := h.insightService.ListForVisitor(c.Request.Context(), visitorID, includeDelivered, limit)
	if err != nil {
		marker.SetError(err)
		h.visitorError(c, "list insights", err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"insights": insights, "count": len(insights)})
}

// PostDelivered handles POST /api/v1/insights/:id/delivered
func (h *VisitorHandlers) PostDelivered(c *gin.Context) {
	insightID := c.Param("id")
	marker := h.perfTracker.StartOperation("post_insight_delivered_request", insightID)
	defer marker.Complete()

	visitorID := ""
	if !middleware.IsTrusted(c) {
		claims, ok := middleware.GetSessionClaims(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session token required"})
			return
		}
		visitorID = claims.VisitorID
	}

	insight, err := h.insightService.MarkDelivered(c.Request.Context(), insightID, visitorID)
	if err != nil {
		marker.SetError(err)
		h.visitorError(c, "mark insight delivered", err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, insight)
}

// PostClassify handles POST /api/v1/visitors/:id/classify
func (h *VisitorHandlers) PostClassify(c *gin.Context) {
	visitorID := c.Param("id")
	marker := h.perfTracker.StartOperation("post_classify_request", visitorID)
	defer marker.Complete()

	if !ownsVisitor(c, visitorID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	result, err := h.classifierService.Classify(c.Request.Context(), visitorID)
	if err != nil {
		marker.SetError(err)
		h.visitorError(c, "classify visitor", err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}

func (h *VisitorHandlers) visitorError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, visitor.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "visitor not found"})
	case errors.Is(err, visitor.ErrInsightNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "insight not found"})
	default:
		h.logger.Behavior().Error("Visitor request failed", "operation", operation, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + operation})
	}
}

// ownsVisitor admits trusted callers and visitors acting on themselves.
func ownsVisitor(c *gin.Context, visitorID string) bool {
	if middleware.IsTrusted(c) {
		return true
	}
	claims, ok := middleware.GetSessionClaims(c)
	return ok && claims.VisitorID == visitorID
}
