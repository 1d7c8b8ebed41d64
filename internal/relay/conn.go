package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"codesync/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	maxFrameSize = 1 << 20
	sendBuffer   = 256
)

// Conn is one authenticated client connection. The hub owns its
// registry entry; the read and write pumps own the socket.
type Conn struct {
	ID     string
	UserID string

	ws   *websocket.Conn
	hub  *Hub
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newConn(hub *Hub, ws *websocket.Conn, userID string) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		hub:    hub,
		send:   make(chan []byte, sendBuffer),
	}
}

// queue hands msg to the write pump without blocking. It reports false
// when the connection is closed or its buffer is full; a slow recipient
// never stalls the sender.
func (c *Conn) queue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) sendJSON(v any) bool {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("conn %s: marshal outbound frame: %v", c.ID, err)
		return false
	}
	return c.queue(msg)
}

func (c *Conn) sendError(message string) {
	c.sendJSON(models.ErrorFrame{Error: message})
}

// shutdown marks the connection closed and stops the write pump. Safe
// to call more than once; send and close are serialized on c.mu so the
// pipeline can never write to a closed channel.
func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump pumps inbound frames from the socket into the hub. One per
// connection; per-connection frame ordering follows from the single
// reader goroutine.
func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("conn %s: read: %v", c.ID, err)
			}
			return
		}

		c.hub.HandleFrame(ctx, c, message)
	}
}

// writePump drains the send queue to the socket and keeps the
// connection live with periodic pings. A missed pong trips the read
// deadline and tears the connection down.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
