package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vitarp-go/internal/platform/logging"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 32
)

// client is one connected UI shell.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// writePump drains the send queue onto the socket.
func (c *client) writePump() {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Hub tracks connected event-feed clients and fans frames out to them.
type Hub struct {
	logger  *logging.Logger
	mu      sync.Mutex
	clients map[string]*client
}

// NewHub builds an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("event feed client connected", "id", c.id, "clients", count)
	go c.writePump()
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Broadcast queues one frame for every client. Clients that cannot keep up
// are disconnected rather than allowed to stall the feed.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	var dropped []string
	for id, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			dropped = append(dropped, id)
		}
	}
	h.mu.Unlock()

	for _, id := range dropped {
		h.logger.Warn("event feed client too slow, dropping", "id", id)
		h.unregister(id)
	}
}

// Count reports connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
