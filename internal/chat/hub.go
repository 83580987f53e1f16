package chat

import (
	"sync"

	"github.com/ConnorWiseman/taka/internal/metrics"
)

// Reserved broadcast topics. Every connection additionally belongs to a
// topic named after its current username, which is how ban notices and
// settings updates reach all of one user's tabs.
const (
	TopicPublic = "public"
	TopicStaff  = "staff"
)

// Hub is the process-wide broadcast registry: topic → set of connections.
// Join and leave are called only from the connection pipeline and the
// identity-transition handlers.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		topics:  make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// Register adds a connection to the hub's global set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

// Unregister removes a connection from the global set and every topic.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for topic, members := range h.topics {
		delete(members, c)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
	metrics.WsConnections.Dec()
}

func (h *Hub) Join(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Client]struct{})
		h.topics[topic] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) Leave(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// Members returns a stable snapshot of a topic's membership. Fan-out
// iterations must use this rather than holding the hub locked, so a
// concurrent join cannot disturb the iteration.
func (h *Hub) Members(topic string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.topics[topic]
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// Clients returns a snapshot of every registered connection.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Online reports the number of connections in a topic.
func (h *Hub) Online(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Broadcast queues a payload to every member of a topic.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.BroadcastExcept(topic, nil, payload)
}

// BroadcastExcept queues a payload to every member of a topic but the
// originating connection, which already received its acknowledgment.
func (h *Hub) BroadcastExcept(topic string, except *Client, payload []byte) {
	if payload == nil {
		return
	}
	for _, c := range h.Members(topic) {
		if c != except {
			c.trySend(payload)
		}
	}
}

// BroadcastAll queues a payload to every connection.
func (h *Hub) BroadcastAll(payload []byte) {
	h.BroadcastAllExcept(nil, payload)
}

// BroadcastAllExcept queues a payload to every connection but one.
func (h *Hub) BroadcastAllExcept(except *Client, payload []byte) {
	if payload == nil {
		return
	}
	for _, c := range h.Clients() {
		if c != except {
			c.trySend(payload)
		}
	}
}
