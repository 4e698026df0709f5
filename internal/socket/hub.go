// internal/socket/hub.go
package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Queue messages
	MessagePositionEnrolled      MessageType = "position_enrolled"
	MessagePositionStatusChanged MessageType = "position_status_changed"
	MessageQueueStats            MessageType = "queue_stats"
	MessageSponsorRecruit        MessageType = "sponsor_recruit"

	// System messages
	MessagePing MessageType = "ping"
	MessagePong MessageType = "pong"
	MessageAck  MessageType = "ack"
)

// Rooms
const (
	RoomPowerLine  = "powerline"
	userRoomPrefix = "user:"
)

const outboundBuffer = 512

// UserRoom is the personal room every client joins on connect. Direct
// messages to a user are room messages to this room.
func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// Message represents a WebSocket message
type Message struct {
	Type      MessageType            `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID       string
	UserID   string
	Conn     *websocket.Conn
	Hub      *Hub
	Send     chan []byte
	Rooms    map[string]bool
	mu       sync.Mutex
	lastPing time.Time
	// closed is set once Send has been closed; guarded by mu
	closed bool
}

// envelope is one encoded message addressed to a room. An empty room means
// every connected client.
type envelope struct {
	room    string
	data    []byte
	exclude string
}

// Hub owns the connected clients and their room memberships. Only the Run
// loop registers and unregisters clients; room membership and fan-out use mu.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	outbound   chan envelope

	// done is closed when Run returns
	done chan struct{}

	pingInterval time.Duration
	log          *logrus.Entry
	mu           sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		rooms:        make(map[string]map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		outbound:     make(chan envelope, outboundBuffer),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
		log:          logrus.WithField("component", "hub"),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("WebSocket hub started")

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.log.Info("WebSocket hub stopped")
			return

		case c := <-h.register:
			h.attach(c)

		case c := <-h.unregister:
			h.detach(c)

		case env := <-h.outbound:
			h.fanOut(env)

		case <-ticker.C:
			if data, ok := h.encode(MessagePing, nil); ok {
				h.fanOut(envelope{data: data})
			}
		}
	}
}

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	c.logger().WithField("clients", n).Info("Client registered")
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	c.mu.Lock()
	for room := range c.Rooms {
		h.dropMember(room, c)
	}
	c.closed = true
	close(c.Send)
	c.mu.Unlock()

	n := len(h.clients)
	h.mu.Unlock()

	c.logger().WithField("clients", n).Info("Client disconnected")
}

// dropMember removes c from room. Callers hold h.mu.
func (h *Hub) dropMember(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.mu.Lock()
		c.closed = true
		close(c.Send)
		c.mu.Unlock()
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
}

func (h *Hub) fanOut(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if env.room != "" {
		targets = h.rooms[env.room]
	}

	sent := 0
	for c := range targets {
		if env.exclude != "" && c.UserID == env.exclude {
			continue
		}
		select {
		case c.Send <- env.data:
			sent++
		default:
			// slow consumer; the run loop drops it once this fan-out returns
			go h.remove(c)
		}
	}
	if env.room != "" {
		h.log.WithFields(logrus.Fields{"room": env.room, "sent": sent}).Debug("Room message delivered")
	}
}

// remove asks the run loop to drop c. It is a no-op once the hub stopped.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// add registers c with the run loop. It reports false after the hub stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// ============================================
// Rooms
// ============================================

// JoinRoom adds a client to a room. Disconnected clients are ignored.
func (h *Hub) JoinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.Rooms[room] = true
	c.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	c.logger().WithField("room", room).Debug("Client joined room")
}

// LeaveRoom removes a client from a room
func (h *Hub) LeaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	delete(c.Rooms, room)
	c.mu.Unlock()

	h.dropMember(room, c)
	c.logger().WithField("room", room).Debug("Client left room")
}

// ============================================
// Publishing
// ============================================

// SendToUser reaches every connection of a user through their personal room.
func (h *Hub) SendToUser(userID string, msgType MessageType, payload map[string]interface{}) {
	h.publish(UserRoom(userID), msgType, payload, "")
}

// SendToRoom broadcasts to a room, skipping the connections of excludeUserID.
func (h *Hub) SendToRoom(room string, msgType MessageType, payload map[string]interface{}, excludeUserID string) {
	h.publish(room, msgType, payload, excludeUserID)
}

// publish never blocks: realtime delivery is best-effort and a full
// outbound queue drops the message.
func (h *Hub) publish(room string, msgType MessageType, payload map[string]interface{}, exclude string) {
	data, ok := h.encode(msgType, payload)
	if !ok {
		return
	}
	select {
	case h.outbound <- envelope{room: room, data: data, exclude: exclude}:
	default:
		h.log.WithFields(logrus.Fields{"room": room, "type": msgType}).Warn("Outbound queue full, dropping message")
	}
}

func (h *Hub) encode(msgType MessageType, payload map[string]interface{}) ([]byte, bool) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload, Timestamp: time.Now()})
	if err != nil {
		h.log.WithError(err).WithField("type", msgType).Error("Error marshaling message")
		return nil, false
	}
	return data, true
}

// ============================================
// Query Methods
// ============================================

// GetRoomClients returns the number of clients in a room
func (h *Hub) GetRoomClients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// GetConnectedClientsCount returns total connected clients
func (h *Hub) GetConnectedClientsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
