// Package monitor streams procedure database and plug-in manager events to
// websocket clients.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/plugins"
	"github.com/FocuswithJustin/picman/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	// Clients only ever send control frames.
	maxMessageSize = 512
	sendQueue      = 256
)

// Message is one event as it appears on the wire.
type Message struct {
	Type      string   `json:"type"`
	Procedure string   `json:"procedure,omitempty"`
	ProcType  string   `json:"proc_type,omitempty"`
	Prog      string   `json:"prog,omitempty"`
	Mode      string   `json:"mode,omitempty"`
	MenuPath  string   `json:"menu_path,omitempty"`
	MenuLabel string   `json:"menu_label,omitempty"`
	History   []string `json:"history,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Config controls which browsers may connect.
type Config struct {
	// AllowedOrigins lists exact origins, "*.example.com" patterns or "*".
	// Requests without an Origin header (non-browser clients) are always
	// accepted.
	AllowedOrigins []string
}

// Client is one connected websocket.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the connected clients and fans messages out to them.
type Hub struct {
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(cfg Config) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || originAllowed(origin, cfg.AllowedOrigins) {
				return true
			}
			logging.SecurityEvent("origin_rejected", "monitor", "origin", origin)
			return false
		},
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		switch {
		case a == "*", a == origin:
			return true
		case strings.HasPrefix(a, "*."):
			if strings.HasSuffix(origin, a[1:]) {
				return true
			}
		}
	}
	return false
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.MonitorEvent("client_connected", n, "client_id", c.ID)

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.MonitorEvent("client_disconnected", n, "client_id", c.ID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Too slow to keep up.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal monitor message", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logging.Warn("monitor broadcast queue full, dropping message", "type", msg.Type)
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		logging.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueue),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// Attach forwards the events of m and its procedure database to the hub.
// The returned function detaches again.
func (h *Hub) Attach(m *plugins.Manager) func() {
	stopPDB := m.PDB().Subscribe(func(ev pdb.Event) {
		h.Broadcast(Message{
			Type:      "procedure-" + ev.Kind.String(),
			Procedure: ev.Procedure.Name,
			ProcType:  ev.Procedure.Type.String(),
		})
	})
	stopManager := m.Subscribe(func(ev plugins.Event) {
		msg := Message{Type: ev.Kind.String()}
		switch ev.Kind {
		case plugins.EventPlugInOpened, plugins.EventPlugInClosed:
			msg.Prog = ev.PlugIn.Prog()
			msg.Mode = ev.PlugIn.Mode().String()
		case plugins.EventMenuBranchAdded:
			msg.Prog = ev.Branch.Prog
			msg.MenuPath = ev.Branch.MenuPath
			msg.MenuLabel = ev.Branch.MenuLabel
		case plugins.EventHistoryChanged:
			for _, p := range m.History() {
				msg.History = append(msg.History, p.Name)
			}
		}
		h.Broadcast(msg)
	})
	return func() {
		stopPDB()
		stopManager()
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket unexpected close", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}

// writePump sends every queued message as its own text frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
