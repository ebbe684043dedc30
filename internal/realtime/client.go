package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one live connection. The read pump is its only reader and the
// write pump its only writer.
type client struct {
	gw     *Gateway
	conn   *websocket.Conn
	userID string

	mu     sync.Mutex
	send   chan []byte
	teams  map[string]struct{}
	closed bool
}

func newClient(gw *Gateway, conn *websocket.Conn, userID string, buffer int) *client {
	return &client{
		gw:     gw,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, buffer),
		teams:  make(map[string]struct{}),
	}
}

// enqueue queues msg without blocking. It reports false when the buffer is
// full or the client is closed.
func (c *client) enqueue(msg []byte) bool {
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

// close stops the write pump. Safe to call more than once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) subscribe(teamID string) {
	c.mu.Lock()
	c.teams[teamID] = struct{}{}
	c.mu.Unlock()
}

func (c *client) unsubscribe(teamID string) {
	c.mu.Lock()
	delete(c.teams, teamID)
	c.mu.Unlock()
}

func (c *client) subscribed(teamID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.teams[teamID]
	return ok
}

func (c *client) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Error("failed to encode realtime frame", "type", f.Type, "error", err)
		return
	}
	if c.enqueue(data) {
		c.gw.observer.IncRealtimeFrame("out", f.Type)
	}
}

// readPump handles inbound frames in arrival order until the connection
// fails, then unregisters the client.
func (c *client) readPump() {
	defer func() {
		c.gw.remove(c)
		c.conn.Close()
	}()

	opts := c.gw.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("realtime connection closed", "user_id", c.userID, "error", err)
			}
			return
		}
		c.handle(message)
	}
}

func (c *client) handle(raw []byte) {
	msg, code := parseInbound(raw)
	if code != "" {
		c.gw.observer.IncRealtimeFrame("in", "invalid")
		c.reply(errorFrame(code))
		return
	}
	c.gw.observer.IncRealtimeFrame("in", msg.typ)

	switch msg.typ {
	case TypeSubscribe:
		ctx, cancel := context.WithTimeout(context.Background(), c.gw.opts.WriteWait)
		ok, err := c.gw.members.IsMember(ctx, msg.teamID, c.userID)
		cancel()
		if err != nil {
			slog.Error("realtime membership lookup failed", "user_id", c.userID, "team_id", msg.teamID, "error", err)
			c.reply(errorFrame(CodeInternal))
			return
		}
		if !ok {
			c.reply(errorFrame(CodeForbidden))
			return
		}
		c.subscribe(msg.teamID)
		c.reply(Frame{Type: TypeSubscribed, TeamID: msg.teamID})
	case TypeUnsubscribe:
		c.unsubscribe(msg.teamID)
		c.reply(Frame{Type: TypeUnsubscribed, TeamID: msg.teamID})
	}
}

// writePump drains the send buffer onto the socket and keeps the connection
// alive with pings.
func (c *client) writePump() {
	opts := c.gw.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
