package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a live notification about a change inside one group.
type Message struct {
	Type    string         `json:"type"`
	GroupID int64          `json:"group_id"`
	Entity  string         `json:"entity"`
	Action  string         `json:"action"`
	ID      int64          `json:"id,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(groupID int64, entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:    fmt.Sprintf("%s_%s", entity, action),
		GroupID: groupID,
		Entity:  entity,
		Action:  action,
		ID:      id,
		Extra:   extra,
	}
}

// Hub tracks connected clients by group and fans messages out to the
// clients of the message's group only.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	h.remove(c)
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast sends a message to every client subscribed to msg.GroupID.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.groupID != msg.GroupID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop rather than block the caller.
			h.logger.Debug("dropped message for slow client", "group_id", c.groupID, "account_id", c.accountID)
		}
	}
}

// Disconnect drops every connection the account holds in the group.
func (h *Hub) Disconnect(groupID, accountID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.groupID == groupID && c.accountID == accountID {
			h.remove(c)
		}
	}
}

// DisconnectGroup drops every connection subscribed to the group.
func (h *Hub) DisconnectGroup(groupID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.groupID == groupID {
			h.remove(c)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
