package gateway

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// Client is a single WebSocket peer. Its subscription set is guarded by
// the hub's mutex; the send queue decouples the broadcaster from the
// socket.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	symbols map[string]struct{}
	dropped atomic.Int64
}

// enqueue places a serialized envelope on the outbound queue without
// ever blocking. When the queue is full the oldest entry is evicted so
// fresher events win, and the drop counter advances.
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
		return
	default:
	}

	select {
	case <-c.send:
		c.dropped.Add(1)
		c.hub.notifyDrop()
	default:
	}

	select {
	case c.send <- msg:
	default:
		// Lost the slot to a concurrent enqueue; the new event is the
		// casualty this time.
		c.dropped.Add(1)
		c.hub.notifyDrop()
	}
}

func (c *Client) enqueueJSON(v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Error().Err(err).Msg("envelope marshal failed")
		return
	}
	c.enqueue(buf)
}

func (c *Client) sendError(message string) {
	c.enqueueJSON(errorMsg{Type: "error", Message: message, Timestamp: wsNow()})
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings. One goroutine per client; exits when the
// queue closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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

// readPump consumes client frames and dispatches actions. One goroutine
// per client; on exit the client is unregistered and the connection
// closed.
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		c.hub.log.Info().
			Int64("dropped", c.dropped.Load()).
			Msg("ws client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(msg)
	}
}

// dispatch handles one client frame. Malformed frames and unknown
// actions answer with an error envelope and keep the connection open.
func (c *Client) dispatch(msg []byte) {
	var frame clientFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		c.sendError("invalid message: not valid JSON")
		return
	}

	switch frame.Action {
	case "subscribe":
		if len(frame.Symbols) == 0 {
			c.sendError("at least one symbol is required")
			return
		}
		symbols := c.hub.subscribe(c, frame.Symbols)
		c.enqueueJSON(ackMsg{Type: "subscribed", Symbols: symbols, Timestamp: wsNow()})

	case "unsubscribe":
		if len(frame.Symbols) == 0 {
			c.sendError("at least one symbol is required")
			return
		}
		symbols := c.hub.unsubscribe(c, frame.Symbols)
		c.enqueueJSON(ackMsg{Type: "unsubscribed", Symbols: symbols, Timestamp: wsNow()})

	case "ping":
		c.enqueueJSON(pongMsg{Type: "pong", Timestamp: wsNow()})

	case "stats":
		c.enqueueJSON(statsMsg{Type: "stats", Data: c.hub.snapshot(), Timestamp: wsNow()})

	default:
		c.sendError(fmt.Sprintf("unknown action: %s", frame.Action))
	}
}
