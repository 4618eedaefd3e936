// Package events streams engine activity to websocket subscribers.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Constants for hub configuration
const (
	MaxClients     = 50
	WriteTimeout   = 10 * time.Second
	PongTimeout    = 60 * time.Second
	PingInterval   = 30 * time.Second
	clientBuffer   = 64
	broadcastQueue = 256
)

// Message is the envelope written to subscribers
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// accepted receives the hub's admission decision.
	accepted chan bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, clientBuffer), accepted: make(chan bool, 1)}
}

// Hub fans engine events out to connected websocket clients
type Hub struct {
	log        zerolog.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	maxClients int
}

// NewHub creates a hub; call Run to start delivering messages
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log.With().Str("component", "events").Logger(),
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, broadcastQueue),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
		maxClients: MaxClients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Publish queues an event. It never blocks the caller; events are dropped
// when the hub is saturated or shut down.
func (h *Hub) Publish(kind string, data interface{}) {
	msg := Message{Type: kind, Data: data, Time: time.Now().Format(time.RFC3339)}
	select {
	case <-h.shutdown:
	case h.broadcast <- msg:
	default:
		h.log.Warn().Str("type", kind).Msg("Event queue full, dropping event")
	}
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run delivers queued messages until Shutdown is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			return

		case c := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.maxClients {
				h.mu.Unlock()
				c.accepted <- false
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				c.conn.Close()
				h.log.Warn().Int("max", h.maxClients).Msg("Websocket client rejected")
				continue
			}
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			c.accepted <- true
			h.log.Info().Int("clients", count).Msg("Websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Int("clients", count).Msg("Websocket client disconnected")

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.log.Error().Err(err).Msg("Error marshaling event")
				continue
			}

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Slow consumer
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Shutdown stops the hub and closes every client connection
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.shutdown)

		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
			c.conn.Close()
		}
		h.clients = make(map[*client]bool)
		h.mu.Unlock()
	})
}

// HandleWebSocket upgrades the request and subscribes it to all events
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.Clients() >= h.maxClients {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Websocket upgrade error")
		return
	}

	h.subscribe(newClient(conn))
}

// subscribe registers c and starts its pumps once the hub admits it.
// It reports whether c was admitted.
func (h *Hub) subscribe(c *client) bool {
	select {
	case h.register <- c:
	case <-h.shutdown:
		c.conn.Close()
		return false
	}

	var ok bool
	select {
	case ok = <-c.accepted:
	case <-h.shutdown:
		c.conn.Close()
		return false
	}
	if !ok {
		return false
	}

	go c.writePump()
	go c.readPump(h)
	return true
}

func (c *client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames; subscribers never send commands.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Msg("Websocket read error")
			}
			return
		}
	}
}
