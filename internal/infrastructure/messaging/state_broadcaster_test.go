package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

func TestPublishReachesOnlyTheSession(t *testing.T) {
	b := NewStateBroadcaster(0, logging.NewNopLogger())

	a := NewClient(nil, "s1")
	other := NewClient(nil, "s2")
	require.NoError(t, b.Register(a))
	require.NoError(t, b.Register(other))

	b.Publish("s1", Message{Type: MessageState, Data: map[string]any{"isDelayed": true}})

	require.Len(t, a.Send, 1)
	assert.Len(t, other.Send, 0)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(<-a.Send, &msg))
	assert.Equal(t, "state", msg["type"])
	assert.Equal(t, "s1", msg["sessionId"])
	assert.Equal(t, true, msg["data"].(map[string]any)["isDelayed"])
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewStateBroadcaster(0, logging.NewNopLogger())
	c := NewClient(nil, "s1")
	require.NoError(t, b.Register(c))

	for i := 0; i < sendBuffer*3; i++ {
		b.Publish("s1", Message{Type: MessageSignal})
	}
	assert.Len(t, c.Send, sendBuffer)
}

func TestClientLimitAndUnregister(t *testing.T) {
	b := NewStateBroadcaster(1, logging.NewNopLogger())
	c := NewClient(nil, "s1")
	require.NoError(t, b.Register(c))
	assert.ErrorIs(t, b.Register(NewClient(nil, "s2")), ErrTooManyClients)

	b.Unregister(c)
	b.Unregister(c)
	_, open := <-c.Send
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount("s1"))
	assert.NoError(t, b.Register(NewClient(nil, "s2")))
}

func TestCloseSession(t *testing.T) {
	b := NewStateBroadcaster(0, logging.NewNopLogger())
	c := NewClient(nil, "s1")
	require.NoError(t, b.Register(c))

	b.CloseSession("s1")

	var msg Message
	require.NoError(t, json.Unmarshal(<-c.Send, &msg))
	assert.Equal(t, MessageEnded, msg.Type)
	_, open := <-c.Send
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount("s1"))
}

func TestSendToReachesOnlyThatClient(t *testing.T) {
	b := NewStateBroadcaster(0, logging.NewNopLogger())
	existing := NewClient(nil, "s1")
	joined := NewClient(nil, "s1")
	require.NoError(t, b.Register(existing))
	require.NoError(t, b.Register(joined))

	require.True(t, b.SendTo(joined, Message{Type: MessageState}))
	assert.Len(t, existing.Send, 0)
	require.Len(t, joined.Send, 1)

	var msg Message
	require.NoError(t, json.Unmarshal(<-joined.Send, &msg))
	assert.Equal(t, MessageState, msg.Type)
	assert.Equal(t, "s1", msg.SessionID)

	b.Unregister(joined)
	assert.False(t, b.SendTo(joined, Message{Type: MessageState}))
}
