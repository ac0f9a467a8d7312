package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sweep/app"
	"sweep/places"
)

// writeTimeout bounds a single broadcast write so one stalled client cannot
// hold up the search goroutines that emit events.
const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is sent to clients
type Event struct {
	Type    string             `json:"type"` // place, area, warning, search
	Place   *places.Place      `json:"place,omitempty"`
	Area    *places.SearchArea `json:"area,omitempty"`
	Message string             `json:"message,omitempty"`
	Report  *places.Report     `json:"report,omitempty"`
}

// client is one websocket connection. gorilla connections allow a single
// concurrent writer, so writes go through mu.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	seen time.Time
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub relays engine events to every connected websocket client. It
// implements places.Notifier.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) PlaceAdded(p places.Place) {
	h.broadcast(Event{Type: "place", Place: &p})
}

func (h *Hub) SearchAreaAdded(a places.SearchArea) {
	h.broadcast(Event{Type: "area", Area: &a})
}

func (h *Hub) Warn(msg string) {
	h.broadcast(Event{Type: "warning", Message: msg})
}

func (h *Hub) SearchDone(r *places.Report) {
	h.broadcast(Event{Type: "search", Report: r})
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		app.Log("live", "marshal %s event: %v", ev.Type, err)
		return
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.drop(c.conn)
		}
	}
}

// drop unregisters conn and closes it.
func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Handler upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.Log("live", "WebSocket upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = &client{conn: conn, seen: time.Now()}
	total := len(h.clients)
	h.mu.Unlock()
	app.Log("live", "client connected (total: %d)", total)

	// Read until the client goes away; incoming messages are only heartbeats.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.mu.Unlock()
			conn.Close()
			app.Log("live", "client disconnected (total: %d)", total)
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			h.mu.Lock()
			if c, ok := h.clients[conn]; ok {
				c.seen = time.Now()
			}
			h.mu.Unlock()
		}
	}()
}
