package messaging

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// Message types pushed to subscribers.
const (
	MessageState  = "state"
	MessageSignal = "signal"
	MessageEnded  = "ended"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var ErrTooManyClients = errors.New("stream client limit reached")

// Message is one push to a session's subscribers.
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

// Client represents a single connected stream subscriber.
type Client struct {
	Conn      *websocket.Conn
	SessionID string
	Send      chan []byte
}

// NewClient creates a subscriber for sessionID. conn may be nil for
// in-process subscribers that read Send directly.
func NewClient(conn *websocket.Conn, sessionID string) *Client {
	return &Client{Conn: conn, SessionID: sessionID, Send: make(chan []byte, sendBuffer)}
}

// StateBroadcaster manages session-scoped stream subscribers. Sends never
// block; a subscriber with a full buffer misses the message.
type StateBroadcaster struct {
	sessions   map[string]map[*Client]bool
	total      int
	maxClients int
	mu         sync.RWMutex
	logger     *logging.ChanneledLogger
}

// NewStateBroadcaster creates a broadcaster accepting up to maxClients
// subscribers in total; zero means unlimited.
func NewStateBroadcaster(maxClients int, logger *logging.ChanneledLogger) *StateBroadcaster {
	return &StateBroadcaster{
		sessions:   make(map[string]map[*Client]bool),
		maxClients: maxClients,
		logger:     logger,
	}
}

// Register adds a subscriber.
func (b *StateBroadcaster) Register(client *Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxClients > 0 && b.total >= b.maxClients {
		return ErrTooManyClients
	}
	if _, ok := b.sessions[client.SessionID]; !ok {
		b.sessions[client.SessionID] = make(map[*Client]bool)
	}
	b.sessions[client.SessionID][client] = true
	b.total++

	b.logger.HTTP().Debug("Stream client registered", "sessionId", client.SessionID, "total", b.total)
	return nil
}

// Unregister removes a subscriber and closes its Send channel. Safe to call
// more than once.
func (b *StateBroadcaster) Unregister(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(client)
}

func (b *StateBroadcaster) removeLocked(client *Client) {
	clients, ok := b.sessions[client.SessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	b.total--
	if len(clients) == 0 {
		delete(b.sessions, client.SessionID)
	}
	b.logger.HTTP().Debug("Stream client unregistered", "sessionId", client.SessionID, "total", b.total)
}

func (b *StateBroadcaster) encode(sessionID string, msg Message) ([]byte, bool) {
	msg.SessionID = sessionID
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.HTTP().Error("Failed to marshal stream message", "error", err.Error(), "type", msg.Type)
		return nil, false
	}
	return payload, true
}

// Publish sends msg to every subscriber of sessionID.
func (b *StateBroadcaster) Publish(sessionID string, msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	clients := b.sessions[sessionID]
	if len(clients) == 0 {
		return
	}

	payload, ok := b.encode(sessionID, msg)
	if !ok {
		return
	}

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
	b.logger.LogStreamEvent(msg.Type, sessionID, len(clients))
}

// SendTo queues msg for one registered subscriber only. It reports false
// when the client is no longer registered or its buffer is full.
func (b *StateBroadcaster) SendTo(client *Client, msg Message) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.sessions[client.SessionID][client] {
		return false
	}
	payload, ok := b.encode(client.SessionID, msg)
	if !ok {
		return false
	}
	select {
	case client.Send <- payload:
		return true
	default:
		return false
	}
}

// CloseSession sends a final ended message and drops every subscriber of
// sessionID.
func (b *StateBroadcaster) CloseSession(sessionID string) {
	b.Publish(sessionID, Message{Type: MessageEnded})

	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.sessions[sessionID] {
		b.removeLocked(client)
	}
}

// SubscriberCount returns the number of subscribers of sessionID.
func (b *StateBroadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions[sessionID])
}

// WritePump forwards queued messages to the websocket and keeps it alive
// with pings. It returns when Send is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump discards inbound messages and returns when the peer goes away.
func (c *Client) ReadPump() {
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
