package room

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/greenfelt/cardroom/internal/game"
	"github.com/greenfelt/cardroom/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// client is one WebSocket subscriber of a room, keyed by user id
type client struct {
	conn      *websocket.Conn
	send      chan any
	userID    string
	username  string
	rt        *Runtime
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, userID, username string, rt *Runtime, logger *log.Logger) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		conn:     conn,
		send:     make(chan any, 256),
		userID:   userID,
		username: username,
		rt:       rt,
		logger:   logger.WithPrefix("conn"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *client) start() {
	go c.writePump()
	go c.readPump()
}

// closeWith sends a close frame with the given code, then tears the
// connection down
func (c *client) closeWith(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	c.close()
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		_ = c.conn.Close()
	})
}

// enqueue queues an outbound frame. A full buffer means the client is
// too slow to keep the room's sequence; the connection is closed rather
// than letting it fall behind.
func (c *client) enqueue(msg any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("send on closed connection", "user", c.userID)
		}
	}()

	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("send buffer full, closing connection", "user", c.userID)
		c.closeWith(websocket.CloseInternalServerErr, "send buffer overflow")
	}
}

func (c *client) sendError(message string) {
	c.enqueue(protocol.NewError(message))
}

func (c *client) readPump() {
	defer func() {
		c.close()
		c.rt.disconnect(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg protocol.ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read", "user", c.userID, "error", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error("websocket write", "user", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) handleMessage(msg *protocol.ClientMessage) {
	switch msg.Type {
	case protocol.TypeChat:
		c.rt.handleChat(c, msg.Message)
	case protocol.TypeAction:
		c.rt.handleAction(c, game.Action{Type: msg.Action, Amount: msg.Amount})
	default:
		c.sendError("unknown message type: " + string(msg.Type))
	}
}
