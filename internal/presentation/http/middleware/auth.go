// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/security"
)

const (
	claimsKey  = "sessionClaims"
	trustedKey = "trusted"
)

// TokenValidator is the part of the session service the auth middleware needs.
type TokenValidator interface {
	Authenticate(token, sessionID string) (*security.SessionClaims, error)
	ValidateToken(token string) (*security.SessionClaims, error)
}

// BearerToken reads the session token from the Authorization header, or from
// the token query parameter for websocket and beacon requests that cannot
// set headers.
func BearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return c.Query("token")
}

// SessionAuth requires a token bound to the :id session of the route.
func SessionAuth(validator TokenValidator, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session token required"})
			c.Abort()
			return
		}

		claims, err := validator.Authenticate(token, c.Param("id"))
		if err != nil {
			logger.HTTP().Warn("Session token rejected", "path", c.FullPath(), "error", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// VisitorAuth admits trusted callers, or visitors presenting any valid
// session token. Handlers compare the token's visitor with the resource.
func VisitorAuth(validator TokenValidator, cronSecret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if security.SecretMatches(c.GetHeader(security.CronSecretHeader), cronSecret) {
			c.Set(trustedKey, true)
			c.Next()
			return
		}

		token := BearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session token required"})
			c.Abort()
			return
		}
		claims, err := validator.ValidateToken(token)
		if err != nil {
			logger.HTTP().Warn("Visitor token rejected", "path", c.FullPath(), "error", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// TrustedOnly requires the pre-shared cron secret.
func TrustedOnly(cronSecret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !security.SecretMatches(c.GetHeader(security.CronSecretHeader), cronSecret) {
			logger.HTTP().Warn("Untrusted call to trusted endpoint", "path", c.FullPath(), "client", security.ClientIdentity(c.Request))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Set(trustedKey, true)
		c.Next()
	}
}

// GetSessionClaims returns the claims set by SessionAuth or VisitorAuth.
func GetSessionClaims(c *gin.Context) (*security.SessionClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*security.SessionClaims)
	return claims, ok
}

// IsTrusted reports whether the caller presented the cron secret.
func IsTrusted(c *gin.Context) bool {
	return c.GetBool(trustedKey)
}
