package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out envelopes to connected websocket clients. Slow clients whose
// buffer is full are dropped rather than blocking the publisher.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	last      map[string][]byte
	onCount   func(int)
	closed    bool
	closeOnce sync.Once
}

// NewHub creates an empty hub. onCount, if set, receives the client count
// after every connect and disconnect.
func NewHub(onCount func(int)) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		last:    make(map[string][]byte),
		onCount: onCount,
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts env to every client and remembers it as the latest
// message of its type for clients that connect later.
func (h *Hub) Publish(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.last[env.Type] = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("client", c.id).Msg("Stream client too slow, dropping")
			h.removeLocked(c)
		}
	}
	return nil
}

// ServeWS upgrades the request and streams envelopes until the client leaves
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{id: uuid.New().String()[:8], conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	for _, t := range []string{EventScan, EventStats, EventRejections} {
		if data, ok := h.last[t]; ok {
			c.send <- data
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.notify(count)
	log.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Stream client connected")

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and rejects new ones
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		for c := range h.clients {
			h.removeLocked(c)
		}
		h.mu.Unlock()
		h.notify(0)
	})
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		h.removeLocked(c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.notify(count)
		log.Info().Str("client", c.id).Msg("Stream client disconnected")
	}
}

func (h *Hub) removeLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) notify(count int) {
	if h.onCount != nil {
		h.onCount(count)
	}
}

// readPump only drains control frames; clients do not send data
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeHTTP lets the hub be mounted directly as a handler
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}
