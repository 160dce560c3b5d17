package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// RequestLogger writes one http channel entry per request.
func RequestLogger(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		}
		switch {
		case status >= 500:
			logger.HTTP().Error("Request failed", args...)
		case status >= 400:
			logger.HTTP().Warn("Request rejected", args...)
		default:
			logger.HTTP().Debug("Request served", args...)
		}
	}
}
