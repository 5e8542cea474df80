package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is one real-time notification pushed to connected clients.
type Message struct {
	Type   string `json:"type"`
	Seq    uint64 `json:"seq,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ColumnsUpdated announces that a new aggregation snapshot is available.
// Clients re-fetch the grid rather than receiving the payload inline.
func ColumnsUpdated(seq uint64) Message {
	return Message{Type: "columns_updated", Seq: seq}
}

// SessionExpired announces that the calendar session was invalidated and
// the user must sign in again.
func SessionExpired(reason string) Message {
	return Message{Type: "session_expired", Reason: reason}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	lastSeq uint64
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients. Sequenced messages
// arriving out of order are dropped so clients never see a snapshot
// announcement older than one they already acted on.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.Seq != 0 {
		if msg.Seq <= h.lastSeq {
			return
		}
		h.lastSeq = msg.Seq
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full; drop rather than block the pass
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
