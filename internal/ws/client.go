package ws

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is the middleman between one websocket connection and the hub.
//
// The send channel has two producers (the hub's broadcast loop and the
// client's own pong path), so closure is owned here: every send goes
// through trySend and the channel is closed exactly once by shutdown,
// both under mu.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan Message
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Message, 64),
	}
}

// ID returns the generated connection identifier.
func (c *Client) ID() string {
	return c.id
}

// trySend queues msg for the write pump. It reports false when the client
// is shut down or its buffer is full; it never blocks.
func (c *Client) trySend(msg Message) bool {
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

// shutdown closes the send channel once, stopping the write pump. Safe to
// call multiple times and concurrently with trySend.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Start registers the client, emits the handshake event and begins pumping.
func (c *Client) Start() {
	c.hub.register <- c
	c.trySend(Message{
		Event: EventConnected,
		Data: map[string]any{
			"message":    "Connected to vending machine stream",
			"clientId":   c.id,
			"serverTime": time.Now().UTC().Format(time.RFC3339),
		},
	})
	go c.writePump()
	go c.readPump()
}

// readPump consumes client frames; a ping message gets a pong reply,
// everything else is ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("websocket %s: failed to set read deadline: %v", c.id, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket %s: unexpected close: %v", c.id, err)
			}
			break
		}

		if msg.Event == EventPing {
			c.trySend(Message{
				Event: EventPong,
				Data:  map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
			})
		}
	}
}

// writePump writes hub messages and protocol pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
