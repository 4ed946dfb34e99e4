package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer     = 16
	maxMessageSize = 512
	pongWait       = 60 * time.Second
	pingInterval   = 50 * time.Second
	writeWait      = 10 * time.Second
)

const MessageConnected = "connected"

// Client is one browser connection. Clients only listen; anything they send
// besides control frames is read and discarded.
type Client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

// NewUpgrader accepts any origin when allowed contains "*", otherwise only the
// listed ones. Requests without an Origin header are not from a browser and
// pass.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	origins := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		origins[origin] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origins["*"] || origin == "" || origins[origin]
		},
	}
}

// ServeWS upgrades the request and blocks until the connection closes.
func ServeWS(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, hub *Hub, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{
		hub:    hub,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	if hello, err := encode(Message{Type: MessageConnected, Data: map[string]string{"user_id": userID}}); err == nil {
		client.send <- hello
	}
	hub.Register(userID, client)
	go client.writePump()
	client.readPump()
}

func (c *Client) close() {
	c.once.Do(func() {
		c.hub.Unregister(c.userID, c)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
