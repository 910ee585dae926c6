package display

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.viam.com/rdk/logging"

	"forcetrial/internal/acquisition"
)

const (
	writeTimeout = 5 * time.Second
	clientBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub serves a websocket endpoint and broadcasts acquisition events to every
// connected client. A slow client drops messages rather than stalling the
// broadcaster. New clients first receive the latest window, if any.
type Hub struct {
	logger logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *Message
	closed  bool
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// Compile-time interface check.
var _ acquisition.Observer = (*Hub)(nil)

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan Message, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- *h.last
	}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client input and unregisters the client once the
// connection fails.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			h.logger.Debugf("websocket write failed: %v", err)
			h.remove(c)
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) OnProgress(p acquisition.Progress) {
	h.broadcast(Message{Kind: KindProgress, Progress: &p}, false)
}

func (h *Hub) OnDisplay(w acquisition.Window) {
	h.broadcast(Message{Kind: KindWindow, Window: &w}, true)
}

func (h *Hub) broadcast(msg Message, keep bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if keep {
		h.last = &msg
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debugf("dropping %s message for slow websocket client", msg.Kind)
		}
	}
}

// Close disconnects all clients. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
