package broadcast

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Message is the envelope pushed to connected dashboard clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected dashboard clients and fans messages out to
// them. A slow client never blocks a publish: when its send buffer is
// full the message is dropped for that client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	users   map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	stop       chan struct{}
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		users:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run processes register and unregister requests. Call in its own
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop shuts the hub down and closes all client connections
func (h *Hub) Stop() {
	close(h.stop)
}

// Publish sends a payload to every connected client under the given
// topic. Implements the emitter's Broadcaster.
func (h *Hub) Publish(topic string, payload interface{}) {
	msg := &Message{Type: topic, Data: payload}

	// Sends happen under the read lock: channels are only closed while
	// the write lock is held, so a send can never hit a closed channel.
	h.mu.RLock()
	sent := 0
	for client := range h.clients {
		if client.trySend(msg) {
			sent++
		}
	}
	total := len(h.clients)
	h.mu.RUnlock()

	log.Debug().
		Str("topic", topic).
		Int("clients", total).
		Int("delivered", sent).
		Msg("Message broadcast")
}

// SendToUser sends a message to all connections belonging to a user
func (h *Hub) SendToUser(userID string, msg *Message) {
	h.mu.RLock()
	for client := range h.users[userID] {
		client.trySend(msg)
	}
	h.mu.RUnlock()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if client.UserID != "" {
		if h.users[client.UserID] == nil {
			h.users[client.UserID] = make(map[*Client]bool)
		}
		h.users[client.UserID][client] = true
	}

	log.Info().
		Str("client_id", client.ID).
		Str("user_id", client.UserID).
		Int("total_clients", len(h.clients)).
		Msg("Client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	if client.UserID != "" {
		delete(h.users[client.UserID], client)
		if len(h.users[client.UserID]) == 0 {
			delete(h.users, client.UserID)
		}
	}
	close(client.send)

	log.Info().
		Str("client_id", client.ID).
		Int("total_clients", len(h.clients)).
		Msg("Client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]bool)
	h.users = make(map[string]map[*Client]bool)
}
