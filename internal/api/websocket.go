package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"ainotebook/internal/auth"
	"ainotebook/internal/logging"
)

const writeWait = 10 * time.Second

// Event is pushed to a user's websocket connections when their data changes.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type client struct {
	userID string
	conn   *websocket.Conn
}

type userMessage struct {
	userID string
	data   []byte
}

// Hub manages websocket connections and fans events out per user. It
// implements notebook.Publisher.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan userMessage
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logging.Logger
}

// NewHub creates a hub
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan userMessage, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's event loop. All connection writes happen here.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.WithContext("user_id", c.userID).Debug("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.userID != msg.userID {
					continue
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					c.conn.Close()
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues an event for userID. Events for users without an open
// connection are skipped, and events are dropped when the queue is full.
func (h *Hub) Publish(userID, eventType string, payload interface{}) {
	if h.Connected(userID) == 0 {
		return
	}
	data, err := json.Marshal(Event{Type: eventType, Data: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		h.logger.WithContext("error", err.Error()).Warn("failed to encode event")
		return
	}
	select {
	case h.broadcast <- userMessage{userID: userID, data: data}:
	default:
		h.logger.WithContext("event_type", eventType).Warn("event queue full, dropping event")
	}
}

// Connected returns the number of open connections for userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.userID == userID {
			n++
		}
	}
	return n
}

// handleWebSocket upgrades an authenticated request. The token may come
// from the query string since browsers cannot set headers on upgrades.
func (s *Server) handleWebSocket(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.config.CORSOrigin
		},
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the response.
		s.logger.WithContext("error", err.Error()).Debug("websocket upgrade failed")
		return nil
	}

	cl := &client{userID: userID, conn: conn}
	if !s.hub.add(cl) {
		conn.Close()
		return nil
	}

	// Read loop; clients only send control frames.
	go func() {
		defer s.hub.remove(cl)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}
