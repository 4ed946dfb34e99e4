package websocket

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	MessageBalanceUpdate = "balance_update"
	MessageSyncComplete  = "sync_complete"
)

// Message is the envelope every frame pushed to a client uses.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Balances are decimal strings so clients never see float rounding.
type BalanceUpdate struct {
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	Current   *string   `json:"current"`
	Available *string   `json:"available"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SyncComplete struct {
	Added          int `json:"added"`
	Modified       int `json:"modified"`
	Removed        int `json:"removed"`
	FailedAccounts int `json:"failed_accounts"`
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

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Send queues msg for every connection of userID. Slow clients whose buffer
// is full miss the frame.
func (h *Hub) Send(userID string, msg Message) {
	payload, err := encode(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}

func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	h.Send(userID, Message{Type: MessageBalanceUpdate, Data: update})
}

func (h *Hub) BroadcastSyncComplete(userID string, summary SyncComplete) {
	h.Send(userID, Message{Type: MessageSyncComplete, Data: summary})
}
