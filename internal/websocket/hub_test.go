package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubSendQueuesForUserOnly(t *testing.T) {
	hub := NewHub()
	mine := &Client{send: make(chan []byte, 1)}
	other := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", mine)
	hub.Register("user-2", other)

	current := "10.00"
	hub.BroadcastBalance("user-1", BalanceUpdate{AccountID: "acct-1", Current: &current, Currency: "USD"})

	select {
	case payload := <-mine.send:
		var msg struct {
			Type string        `json:"type"`
			Data BalanceUpdate `json:"data"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type != MessageBalanceUpdate || *msg.Data.Current != "10.00" {
			t.Fatalf("unexpected message: %s", payload)
		}
	default:
		t.Fatalf("expected a queued message")
	}
	if len(other.send) != 0 {
		t.Fatalf("other user should not receive the update")
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", client)
	hub.BroadcastSyncComplete("user-1", SyncComplete{Added: 1})
	hub.BroadcastSyncComplete("user-1", SyncComplete{Added: 2})
	if len(client.send) != 1 {
		t.Fatalf("expected one buffered frame, got %d", len(client.send))
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", client)
	if hub.Connected("user-1") != 1 {
		t.Fatalf("expected one connection")
	}
	hub.Unregister("user-1", client)
	hub.Unregister("user-1", client)
	if hub.Connected("user-1") != 0 {
		t.Fatalf("expected no connections")
	}
}

func TestServeWSDeliversBalanceUpdates(t *testing.T) {
	hub := NewHub()
	upgrader := NewUpgrader([]string{"*"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, upgrader, hub, "user-1")
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected("user-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.BroadcastSyncComplete("user-1", SyncComplete{Added: 3})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{`"type":"connected"`, `"type":"sync_complete"`} {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.Contains(string(payload), want) {
			t.Fatalf("expected %s, got %s", want, payload)
		}
	}
}

func TestServeWSUnregistersOnClose(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, NewUpgrader([]string{"*"}), hub, "user-1")
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected("user-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.Connected("user-1") != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Connected("user-1") != 0 {
		t.Fatal("expected the closed connection to be unregistered")
	}
}

func TestUpgraderChecksOrigin(t *testing.T) {
	upgrader := NewUpgrader([]string{"https://app.blink.test"})
	req := httptest.NewRequest(http.MethodGet, "/ws/balances", nil)
	req.Header.Set("Origin", "https://evil.test")
	if upgrader.CheckOrigin(req) {
		t.Fatalf("expected foreign origin to be rejected")
	}
	req.Header.Set("Origin", "https://app.blink.test")
	if !upgrader.CheckOrigin(req) {
		t.Fatalf("expected allowed origin")
	}
	req.Header.Del("Origin")
	if !upgrader.CheckOrigin(req) {
		t.Fatalf("expected non-browser request without origin to pass")
	}
}
