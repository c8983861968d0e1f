package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/handcricket/backend/internal/game"
)

// Hub holds the connections attached to this process, one per participant.
// It implements game.Notifier for single-process deployments and is the
// local delivery target of the Redis relay otherwise.
type Hub struct {
	instanceID string
	clients    map[string]*Client // participantID -> Client
	mu         sync.RWMutex
	seq        atomic.Uint64
}

func NewHub(instanceID string) *Hub {
	if instanceID == "" {
		instanceID = "local"
	}
	return &Hub{
		instanceID: instanceID,
		clients:    make(map[string]*Client),
	}
}

// nextHandle returns a connection handle unique across processes sharing
// the store as long as instance ids differ.
func (h *Hub) nextHandle() string {
	return fmt.Sprintf("%s/%d", h.instanceID, h.seq.Add(1))
}

// register attaches c and returns the connection it replaced, if any. The
// replaced client is detached but left open; the caller retires it once
// the new handle is bound.
func (h *Hub) register(c *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.clients[c.participant.ID]
	h.clients[c.participant.ID] = c
	return old
}

// unregister detaches c if it is still the participant's current client
// and closes its send queue.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	cur, ok := h.clients[c.participant.ID]
	current := ok && cur == c
	if current {
		delete(h.clients, c.participant.ID)
	}
	h.mu.Unlock()
	c.close()
	return current
}

// SendTo sends an envelope to a single participant.
func (h *Hub) SendTo(participantID string, env game.Envelope) {
	h.Broadcast([]string{participantID}, env)
}

// Broadcast sends the same envelope to every listed participant connected here.
func (h *Hub) Broadcast(participantIDs []string, env game.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[WS] Error marshaling %s: %v", env.Type, err)
		return
	}
	h.deliver(participantIDs, data)
}

func (h *Hub) deliver(participantIDs []string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range participantIDs {
		if client, exists := h.clients[id]; exists {
			client.push(data)
		}
	}
}

// Connected reports whether the participant has a connection on this process.
func (h *Hub) Connected(participantID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[participantID]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close detaches every client. Their pumps wind down and report the drops.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
