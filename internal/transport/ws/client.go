package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/unread"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 64
)

// UnreadCounter is the part of the unread cache a socket needs.
type UnreadCounter interface {
	Get(ctx context.Context, actorID uuid.UUID, opts unread.GetOptions) int
	Subscribe(ctx context.Context, actorID uuid.UUID) *unread.Subscription
}

// Client represents a single WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	actorID uuid.UUID
	counter UnreadCounter
	logger  *log.Logger

	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, actorID uuid.UUID, counter UnreadCounter) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		actorID: actorID,
		counter: counter,
		logger:  hub.logger,
		send:    make(chan []byte, sendBufSize),
		done:    make(chan struct{}),
	}
}

// enqueue hands data to the write pump. It reports false when the buffer is
// full. Nothing is queued once the client is done.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// ReadPump reads client events until the connection or ctx ends.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug("ws: client disconnected", "actor", c.actorID)
			} else {
				c.logger.Debug("ws: read error", "actor", c.actorID, "err", err)
			}
			return
		}

		c.handleEvent(ctx, &event)
	}
}

// WritePump writes queued messages to the WebSocket and keeps it alive.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.logger.Debug("ws: write error", "actor", c.actorID, "err", err)
				return
			}

		case <-ticker.C:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(wctx)
			cancel()
			if err != nil {
				c.logger.Debug("ws: ping error", "actor", c.actorID, "err", err)
				return
			}

		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ForwardCounts pushes the actor's unread count on connect and after every
// change until the client is done.
func (c *Client) ForwardCounts(ctx context.Context) {
	sub := c.counter.Subscribe(ctx, c.actorID)
	defer sub.Close()

	for {
		select {
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			c.sendCount(n)
		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	switch event.Type {
	case EventTypeUnreadRefresh:
		n := c.counter.Get(ctx, c.actorID, unread.GetOptions{Force: true})
		evt, err := NewEvent(EventTypeUnreadCount, UnreadCountPayload{Count: n})
		if err != nil {
			return
		}
		// Every device of the actor shows the same badge.
		c.hub.SendToActor(c.actorID, evt)

	case EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendCount(n int) {
	evt, err := NewEvent(EventTypeUnreadCount, UnreadCountPayload{Count: n})
	if err != nil {
		return
	}
	c.sendEvent(evt)
}

func (c *Client) sendPong() {
	c.sendEvent(&Event{Type: EventTypePong, Timestamp: time.Now().Unix()})
}

func (c *Client) sendError(code, message string) {
	evt, err := NewEvent(EventTypeError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.sendEvent(evt)
}

func (c *Client) sendEvent(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.enqueue(data)
}
