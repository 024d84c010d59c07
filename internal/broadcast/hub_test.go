package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func register(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	client := NewClient(hub, nil, userID)
	hub.Register <- client

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[client]
	}, time.Second, 5*time.Millisecond)

	return client
}

func receive(t *testing.T, client *Client) *Message {
	t.Helper()
	select {
	case msg := <-client.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := startHub(t)

	client := register(t, hub, "")
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister <- client
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)

	// Channel is closed on unregister so the write pump exits
	_, open := <-client.send
	assert.False(t, open)
}

func TestHubPublishReachesAllClients(t *testing.T) {
	hub := startHub(t)

	first := register(t, hub, "")
	second := register(t, hub, "")

	hub.Publish("alert:new", map[string]string{"id": "a-1"})

	for _, client := range []*Client{first, second} {
		msg := receive(t, client)
		assert.Equal(t, "alert:new", msg.Type)
	}
}

func TestHubPublishDropsWhenBufferFull(t *testing.T) {
	hub := startHub(t)
	client := register(t, hub, "")

	for i := 0; i < sendBufferSize+10; i++ {
		hub.Publish("alert:new", i)
	}

	// Buffer holds exactly sendBufferSize messages; overflow was
	// dropped, not blocked on
	assert.Len(t, client.send, sendBufferSize)
}

func TestHubSendToUser(t *testing.T) {
	hub := startHub(t)

	mine := register(t, hub, "user-1")
	other := register(t, hub, "user-2")
	anon := register(t, hub, "")

	hub.SendToUser("user-1", &Message{Type: "alert:new"})

	msg := receive(t, mine)
	assert.Equal(t, "alert:new", msg.Type)
	assert.Empty(t, other.send)
	assert.Empty(t, anon.send)
}

func TestHubUnregisterUnknownClientIsNoop(t *testing.T) {
	hub := startHub(t)
	register(t, hub, "")

	stranger := NewClient(hub, nil, "")
	hub.Unregister <- stranger

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := register(t, hub, "")
	hub.Stop()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-client.send:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
