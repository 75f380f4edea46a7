package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sohyunkim/geurim/backend/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024

	// Flood protection only; far above what one interactive user sends.
	messagesPerSecond = 120
	messageBurst      = 240
)

var errSendBufferFull = errors.New("send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection with its session identity.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	id      string
	limiter *ratelimit.Limiter
	log     *slog.Logger

	nickname string
	mu       sync.RWMutex
}

// ID implements protocol.Session.
func (c *Client) ID() string { return c.id }

// Nickname implements protocol.Session.
func (c *Client) Nickname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nickname
}

// SetNickname implements protocol.Session.
func (c *Client) SetNickname(name string) {
	c.mu.Lock()
	c.nickname = name
	c.mu.Unlock()
}

// Send queues one frame for the write pump. A full buffer drops the frame
// rather than blocking the hub loop; the next snapshot resynchronizes a
// client that fell behind.
func (c *Client) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// ServeWs upgrades the request and registers the connection with the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Error("upgrade failed", "err", err)
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 512),
		id:   uuid.New().String(),
		log:  hub.log,
	}
	client.limiter = hub.limiters.Get(client.id)

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read error", "conn", c.id, "err", err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.log.Warn("rate limit exceeded", "conn", c.id, "warnings", rateLimitWarnings)
			}
			if rateLimitWarnings > 1000 {
				c.log.Warn("disconnecting flooding client", "conn", c.id)
				return
			}
			continue
		}

		c.hub.inbound <- inboundFrame{client: c, data: message}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
