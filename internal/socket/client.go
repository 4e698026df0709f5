// internal/socket/client.go
package socket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// clients only send small control actions
	maxMessageSize int64 = 1024

	sendBuffer = 256
)

// Client actions
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
	ActionPing  = "ping"
	ActionPong  = "pong"
)

// ClientMessage represents an incoming message from a client
type ClientMessage struct {
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
}

// NewClient wraps an upgraded connection. It is not registered yet.
func NewClient(hub *Hub, userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan []byte, sendBuffer),
		Rooms:    make(map[string]bool),
		lastPing: time.Now(),
	}
}

func (c *Client) logger() *logrus.Entry {
	return c.Hub.log.WithFields(logrus.Fields{"user_id": c.UserID, "client_id": c.ID})
}

// ReadPump reads control actions until the connection fails, then hands the
// client back to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.remove(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if isMalformed(err) {
				c.logger().WithError(err).Debug("Ignoring malformed client message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger().WithError(err).Warn("WebSocket read error")
			}
			return
		}
		c.handle(msg)
	}
}

// WritePump writes each queued message as its own text frame so every frame
// is one JSON document, and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Action {
	case ActionJoin:
		if !c.canJoin(msg.Room) {
			c.logger().WithField("room", msg.Room).Debug("Join refused")
			return
		}
		c.Hub.JoinRoom(c, msg.Room)
		c.ack("joined", msg.Room)

	case ActionLeave:
		if msg.Room == "" {
			return
		}
		c.Hub.LeaveRoom(c, msg.Room)
		c.ack("left", msg.Room)

	case ActionPing:
		c.touch()
		c.reply(MessagePong, map[string]interface{}{"time": time.Now().Unix()})

	case ActionPong:
		c.touch()

	default:
		c.logger().WithField("action", msg.Action).Debug("Unknown client action")
	}
}

// canJoin allows the public queue room and the caller's own user room.
func (c *Client) canJoin(room string) bool {
	return room == RoomPowerLine || room == UserRoom(c.UserID)
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}

func (c *Client) ack(action, room string) {
	c.reply(MessageAck, map[string]interface{}{"action": action, "room": room})
}

// reply queues a message for this client only. It is dropped when the client
// is gone or its buffer is full.
func (c *Client) reply(msgType MessageType, payload map[string]interface{}) {
	data, ok := c.Hub.encode(msgType, payload)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.logger().WithField("type", msgType).Warn("Client send buffer full")
	}
}

// isMalformed reports a message that arrived intact but did not decode. The
// connection itself is still usable.
func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
