// Package notify is the ambient status/update broadcast hub: a
// websocket endpoint dashboards and `bwtctl watch` can attach to for
// IndexUpdate and coordinator-status events. It is not the Electrum,
// HTTP, or webhook consumer surface (out of scope per spec.md §1) — it
// only ever carries the same payloads Query already exposes, for
// operational visibility.
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bwt-sh/bwt-go/internal/bwt"
	"github.com/bwt-sh/bwt-go/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventType identifies the kind of payload an Event carries.
type EventType string

const (
	EventIndexUpdate EventType = "index_update"
	EventSyncStarted EventType = "sync_started"
	EventSyncFailed  EventType = "sync_failed"
)

// Event is one message delivered to connected clients.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Client is a single connected websocket subscriber.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans out Events to every connected Client and implements
// bwt.Subscriber so a SyncCoordinator can feed it IndexUpdate batches
// directly, without going through the client registration path.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	log        *logging.Logger
	mu         sync.RWMutex
}

// NewHub creates an unstarted Hub. Call Run in its own goroutine before
// serving HTTP traffic through ServeWS.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logging.GetDefault().Component("notify"),
	}
}

// Run drives the hub's event loop; like the teacher's WSHub.Run it never
// returns and is meant to be launched as `go hub.Run()`.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("notify client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug("notify client disconnected", "clients", len(h.clients))

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Error("failed to marshal notify event", "error", err)
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					h.log.Warn("notify client buffer full, dropping")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) emit(eventType EventType, data interface{}) {
	event := &Event{Type: eventType, Data: data, Timestamp: time.Now().Unix()}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("notify broadcast channel full, dropping event", "type", eventType)
	}
}

// SendUpdates implements bwt.Subscriber: each IndexUpdate batch the
// SyncCoordinator produces is broadcast as a single EventIndexUpdate.
func (h *Hub) SendUpdates(updates []bwt.IndexUpdate) {
	if len(updates) == 0 {
		return
	}
	h.emit(EventIndexUpdate, updates)
}

// SyncFailed reports a sync round's error, for operators watching the
// hub rather than tailing logs.
func (h *Hub) SyncFailed(reason string) {
	h.emit(EventSyncFailed, map[string]string{"error": reason})
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket connection and
// registers it with the hub. It is read-only from the client's
// perspective: bwt's notify surface has no subscription protocol to
// negotiate, every client receives every event.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("notify websocket upgrade failed", "error", err)
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 256), hub: h}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump only exists to detect client disconnects and drain pings;
// bwt's notify clients never send anything meaningful.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
