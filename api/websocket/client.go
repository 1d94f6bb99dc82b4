package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/hub"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// client ties one WebSocket connection to one hub subscription. The hub
// pushes framed events into the subscription channel; control replies from
// readPump go through a separate channel so writePump stays the only writer.
type client struct {
	hub     *hub.Hub
	conn    *websocket.Conn
	sub     *hub.Subscriber
	control chan []byte
	logger  *zap.Logger
}

func newClient(h *hub.Hub, conn *websocket.Conn, logger *zap.Logger) *client {
	return &client{
		hub:     h,
		conn:    conn,
		sub:     h.Subscribe(hub.TransportWebSocket),
		control: make(chan []byte, 8),
		logger:  logger,
	}
}

// readPump consumes client messages and enforces the pong deadline. Any read
// error ends the session and removes the subscription.
func (c *client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub.ID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("id", c.sub.ID), zap.Error(err))
			}
			return
		}

		c.handleMessage(message)
	}
}

// writePump pumps hub frames and control replies to the connection
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.sub.Receive():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped this subscriber
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case reply := <-c.control:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

// handleMessage handles the small application-level protocol: clients get the
// block stream without asking, "ping" earns a "pong", anything else an error.
func (c *client) handleMessage(message []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(map[string]string{"type": "error", "message": "invalid message format"})
		return
	}

	switch msg.Type {
	case "ping":
		c.reply(map[string]string{"type": "pong"})
	default:
		c.reply(map[string]string{"type": "error", "message": "unknown message type: " + msg.Type})
	}
}

func (c *client) reply(body map[string]string) {
	frame, err := json.Marshal(body)
	if err != nil {
		return
	}
	select {
	case c.control <- frame:
	default:
		c.logger.Warn("control buffer full, dropping reply", zap.String("id", c.sub.ID))
	}
}
