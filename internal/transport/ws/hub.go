package ws

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/metrics"
)

// Hub tracks the open sockets of every actor. An actor may be connected from
// several devices at once.
type Hub struct {
	clients map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	direct     chan *directMsg
	stopped    chan struct{}

	metrics *metrics.Metrics
	logger  *log.Logger
}

type directMsg struct {
	actorID uuid.UUID
	data    []byte
}

func NewHub(m *metrics.Metrics, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan *directMsg, 256),
		stopped:    make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// Run starts the Hub's main event loop. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for c := range conns {
					c.closeDone()
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]struct{})
			return

		case client := <-h.register:
			conns, ok := h.clients[client.actorID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[client.actorID] = conns
			}
			conns[client] = struct{}{}
			h.metrics.ClientConnected()
			h.logger.Debug("ws hub: actor connected", "actor", client.actorID, "devices", len(conns))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.direct:
			for client := range h.clients[msg.actorID] {
				if !client.enqueue(msg.data) {
					// Client buffer full - disconnect
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	conns, ok := h.clients[client.actorID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.actorID)
	}
	client.closeDone()
	h.metrics.ClientDisconnected()
	h.logger.Debug("ws hub: actor disconnected", "actor", client.actorID, "devices", len(conns))
}

// Register adds a client. A client registered after the hub stopped is done
// immediately.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
		c.closeDone()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// SendToActor delivers an event to every socket of the actor on this
// instance.
func (h *Hub) SendToActor(actorID uuid.UUID, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("ws hub: marshal error", "err", err)
		return
	}
	select {
	case h.direct <- &directMsg{actorID: actorID, data: data}:
	default:
		h.logger.Warn("ws hub: direct queue full, dropping event", "actor", actorID, "type", event.Type)
	}
}
