package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/datingchat-server/internal/observability"
)

// Broadcaster fans events out to connections. The orchestrator only talks to
// clients through it.
type Broadcaster interface {
	SendToGroup(name string, kind EventKind, payload any)
	SendToConnections(ids []string, kind EventKind, payload any)
}

// GroupMembers resolves a group name to its connection ids.
type GroupMembers interface {
	Members(name string) []string
}

// Hub maps connection ids to client queues and implements Broadcaster.
// Sends never block: a full queue drops the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	members GroupMembers
	log     *zerolog.Logger
}

// NewHub creates a hub that resolves group fan-out through members.
func NewHub(members GroupMembers, logger *zerolog.Logger) *Hub {
	l := logger.With().Str("component", "hub").Logger()
	return &Hub{
		clients: make(map[string]*Client),
		members: members,
		log:     &l,
	}
}

// RegisterClient makes c reachable by its id.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
}

// UnregisterClient removes the client and closes its queue.
func (h *Hub) UnregisterClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.Events)
}

// SendToGroup delivers to every connection currently in the group.
func (h *Hub) SendToGroup(name string, kind EventKind, payload any) {
	h.SendToConnections(h.members.Members(name), kind, payload)
}

// SendToConnections delivers to each listed connection that is still registered.
func (h *Hub) SendToConnections(ids []string, kind EventKind, payload any) {
	if len(ids) == 0 {
		return
	}
	event := &Event{Kind: kind, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range ids {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case c.Events <- event:
			observability.IncWSEvent(kind.String())
		default:
			// Drop if slow consumer.
			observability.IncWSDropped(kind.String())
			h.log.Warn().Str("conn_id", id).Str("event", kind.String()).Msg("outbound queue full, event dropped")
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
