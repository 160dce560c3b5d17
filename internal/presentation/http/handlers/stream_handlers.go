package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// StreamHandlers push live session state over websockets
type StreamHandlers struct {
	sessionService *services.SessionService
	broadcaster    *messaging.StateBroadcaster
	upgrader       websocket.Upgrader
	logger         *logging.ChanneledLogger
}

// NewStreamHandlers creates stream handlers. Requests are authenticated by
// session token before the upgrade, so any origin may connect.
func NewStreamHandlers(sessionService *services.SessionService, broadcaster *messaging.StateBroadcaster, logger *logging.ChanneledLogger) *StreamHandlers {
	return &StreamHandlers{
		sessionService: sessionService,
		broadcaster:    broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// GetStream handles GET /api/v1/sessions/:id/stream
func (h *StreamHandlers) GetStream(c *gin.Context) {
	sessionID := c.Param("id")

	view, err := h.sessionService.State(sessionID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read state"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.HTTP().Warn("Websocket upgrade failed", "sessionId", sessionID, "error", err.Error())
		return
	}

	client := messaging.NewClient(conn, sessionID)
	if err := h.broadcaster.Register(client); err != nil {
		h.logger.HTTP().Warn("Stream client rejected", "sessionId", sessionID, "error", err.Error())
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}

	h.broadcaster.SendTo(client, messaging.Message{Type: messaging.MessageState, Data: view})

	go client.WritePump()
	client.ReadPump()
	h.broadcaster.Unregister(client)
}
