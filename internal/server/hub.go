package server

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/toronlabs/toron_backend/internal/logging"
)

// Envelope is the client→server wire frame. AckID, when non-zero, asks
// for a callback frame carrying the operation result.
type Envelope struct {
	Event string          `json:"event"`
	AckID int64           `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound is the server→client wire frame
type outbound struct {
	Event string      `json:"event"`
	AckID int64       `json:"ackId,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// sendBuffer is how many frames a client may lag before drops start
const sendBuffer = 64

// Client is one upgraded websocket connection. All writes go through
// the send channel and a single writer pump, which keeps per-recipient
// ordering and keeps concurrent broadcasts off the raw connection.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan outbound

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan outbound, sendBuffer),
	}
}

// writePump drains the send channel onto the connection. It exits when
// the channel closes or a write fails.
func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			logging.LogSocketEvent("write_failed", c.ID, map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
	}
}

// enqueue hands a frame to the writer pump. A full buffer means the
// consumer stopped draining; the frame is dropped rather than blocking
// every other recipient behind one dead socket.
func (c *Client) enqueue(msg outbound) {
	select {
	case c.send <- msg:
	default:
		logging.LogSocketEvent("send_buffer_full", c.ID, map[string]interface{}{
			"event": msg.Event,
		})
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub tracks live connections and their room channel memberships and
// fans events out to them
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Register adds a connection to the hub
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister removes a connection from the hub and every room channel
// and shuts its writer pump down
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	for roomID, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.close()
}

// JoinRoomChannel subscribes a connection to a room's broadcasts
func (h *Hub) JoinRoomChannel(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connID] = client
}

// LeaveRoomChannel unsubscribes a connection from a room's broadcasts
func (h *Hub) LeaveRoomChannel(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// CloseRoomChannel drops a room channel entirely. Connections stay
// alive; they just stop receiving that room's events.
func (h *Hub) CloseRoomChannel(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, roomID)
}

// Broadcast fans an event out to every subscriber of a room channel
func (h *Hub) Broadcast(roomID, event string, payload interface{}) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for _, client := range h.rooms[roomID] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	msg := outbound{Event: event, Data: payload}
	for _, client := range members {
		client.enqueue(msg)
	}
}

// BroadcastAll sends an event to every live connection. Used for the
// lobby-wide rooms index.
func (h *Hub) BroadcastAll(event string, payload interface{}) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	msg := outbound{Event: event, Data: payload}
	for _, client := range clients {
		client.enqueue(msg)
	}
}

// Send delivers an event to a single connection. It reports whether the
// connection was known.
func (h *Hub) Send(connID, event string, payload interface{}) bool {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	client.enqueue(outbound{Event: event, Data: payload})
	return true
}

// Client looks a connection up by ID
func (h *Hub) Client(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connID]
	return client, ok
}

// ConnectionCount returns the number of live connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
