package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// LogHandlers expose per-channel log levels to operators
type LogHandlers struct {
	logger *logging.ChanneledLogger
}

// NewLogHandlers creates log level handlers
func NewLogHandlers(logger *logging.ChanneledLogger) *LogHandlers {
	return &LogHandlers{logger: logger}
}

// GetLogLevels handles GET /api/v1/logs/levels - returns current log levels for all channels.
func (h *LogHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"levels": h.logger.GetChannelLevels()})
}

// SetLogLevel handles POST /api/v1/logs/levels - sets the log level for a specific channel.
func (h *LogHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log level"})
		return
	}

	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log channel"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "channel": req.Channel, "level": level.String()})
}
