package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/security"
)

// SchedulerRateLimit limits untrusted evaluator invocations per caller
// identity. Callers presenting the cron secret bypass the limiter.
func SchedulerRateLimit(limiter security.Limiter, cronSecret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if security.SecretMatches(c.GetHeader(security.CronSecretHeader), cronSecret) {
			c.Set(trustedKey, true)
			c.Next()
			return
		}

		identity := security.ClientIdentity(c.Request)
		decision := limiter.Allow(identity)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			retryAfter := decision.RetryAfterSeconds()
			logger.RateLimit().Warn("Scheduler invocation rate limited", "client", identity, "retryAfter", retryAfter)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"retryAfter": retryAfter,
			})
			c.Abort()
			return
		}

		logger.RateLimit().Debug("Scheduler invocation allowed", "client", identity, "remaining", decision.Remaining)
		c.Next()
	}
}
