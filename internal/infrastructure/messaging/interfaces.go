// Package messaging fans live session state out to websocket subscribers.
package messaging

// Publisher delivers messages to the subscribers of a session.
type Publisher interface {
	Publish(sessionID string, msg Message)
	SubscriberCount(sessionID string) int
	CloseSession(sessionID string)
}
