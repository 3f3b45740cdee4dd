package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"reconciler/internal/models"
)

const EventMatchCreated = "match.created"

// MatchEvent is pushed to an operator's open dashboards whenever one of
// their transactions gets matched, automatically or by hand.
type MatchEvent struct {
	Type       string                  `json:"type"`
	Match      models.TransactionMatch `json:"match"`
	OccurredAt time.Time               `json:"occurred_at"`
}

func NewMatchEvent(match models.TransactionMatch) MatchEvent {
	return MatchEvent{Type: EventMatchCreated, Match: match, OccurredAt: time.Now().UTC()}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(operatorID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[operatorID] == nil {
		h.clients[operatorID] = make(map[*Client]struct{})
	}
	h.clients[operatorID][client] = struct{}{}
}

// Unregister drops the client and closes its send channel, which stops its
// writer. Repeated calls are no-ops.
func (h *Hub) Unregister(operatorID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[operatorID][client]; !ok {
		return
	}
	delete(h.clients[operatorID], client)
	close(client.send)
	if len(h.clients[operatorID]) == 0 {
		delete(h.clients, operatorID)
	}
}

func (h *Hub) ClientCount(operatorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[operatorID])
}

// BroadcastMatch never blocks; slow clients drop events and pick the match
// up on their next listing.
func (h *Hub) BroadcastMatch(operatorID string, event MatchEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[operatorID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
