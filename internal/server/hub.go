package server

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/trailsync/internal/gps"
	"github.com/shaunagostinho/trailsync/internal/observability"
)

var (
	dropIdle    = observability.EventsDropped.WithLabelValues("idle")
	dropFull    = observability.EventsDropped.WithLabelValues("queue_full")
	dropStopped = observability.EventsDropped.WithLabelValues("stopped")
)

// wsConn is the part of *websocket.Conn the hub uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type wsClient struct {
	id   string
	conn wsConn
	send chan []byte
}

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Clients      int    `json:"clients"`
	Submitted    uint64 `json:"submitted"`    // Events accepted by Submit
	Dropped      uint64 `json:"dropped"`      // Events rejected by Submit or found no clients
	Broadcasts   uint64 `json:"broadcasts"`   // Events fanned out
	SendFailures uint64 `json:"sendFailures"` // Clients removed after a failed write
}

// Hub owns the set of live websocket clients. The set is only touched by
// the goroutine running Run; everything else talks to it over channels.
type Hub struct {
	events     chan gps.Position
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	clientBuf  int

	clients map[*wsClient]struct{}
	count   atomic.Int64

	submitted    atomic.Uint64
	dropped      atomic.Uint64
	broadcasts   atomic.Uint64
	sendFailures atomic.Uint64
}

// NewHub creates a hub. bridgeBuffer bounds queued events, clientBuffer
// bounds each client's pending messages.
func NewHub(bridgeBuffer, clientBuffer int) *Hub {
	if bridgeBuffer <= 0 {
		bridgeBuffer = 64
	}
	if clientBuffer <= 0 {
		clientBuffer = 16
	}
	return &Hub{
		events:     make(chan gps.Position, bridgeBuffer),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		clientBuf:  clientBuffer,
		clients:    make(map[*wsClient]struct{}),
	}
}

// Submit hands a position to the hub without waiting. Events are delivered
// in submission order. With no clients connected, after the hub stopped, or
// when the queue is full the event is dropped.
func (h *Hub) Submit(p gps.Position) {
	if h.count.Load() == 0 {
		h.dropped.Add(1)
		dropIdle.Inc()
		return
	}
	select {
	case <-h.done:
		h.dropped.Add(1)
		dropStopped.Inc()
		return
	default:
	}
	select {
	case h.events <- p:
		h.submitted.Add(1)
	default:
		h.dropped.Add(1)
		dropFull.Inc()
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int { return int(h.count.Load()) }

// Stats returns current hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients:      h.Len(),
		Submitted:    h.submitted.Load(),
		Dropped:      h.dropped.Load(),
		Broadcasts:   h.broadcasts.Load(),
		SendFailures: h.sendFailures.Load(),
	}
}

// Done is closed once Run has returned and every client is closed.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Run serves the client set until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			close(h.done)
			log.Printf("[ws] hub stopped")
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			observability.Clients.Set(float64(len(h.clients)))
			observability.Connections.Inc()
			log.Printf("[ws] client %s connected (%d total)", c.id, len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				log.Printf("[ws] client %s disconnected (%d total)", c.id, len(h.clients))
			}
		case p := <-h.events:
			h.broadcast(p)
		}
	}
}

// remove drops c from the set and closes it. Run goroutine only.
func (h *Hub) remove(c *wsClient) {
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
	h.count.Store(int64(len(h.clients)))
	observability.Clients.Set(float64(len(h.clients)))
}

// broadcast queues p on every client. Run goroutine only.
func (h *Hub) broadcast(p gps.Position) {
	if len(h.clients) == 0 {
		h.dropped.Add(1)
		dropIdle.Inc()
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	h.broadcasts.Add(1)
	observability.Broadcasts.Inc()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client too slow, skip this message
			observability.ClientQueueDrops.Inc()
		}
	}
}

// attach starts the writer and reader for conn and adds it to the set.
func (h *Hub) attach(conn wsConn) *wsClient {
	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.clientBuf),
	}

	go h.writeLoop(c)

	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
		conn.Close()
		return c
	}

	go h.readLoop(c)
	return c
}

// leave asks the hub to drop c. Safe to call more than once.
func (h *Hub) leave(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.sendFailures.Add(1)
			observability.SendFailures.Inc()
			log.Printf("[ws] client %s write failed: %v", c.id, err)
			h.leave(c)
			return
		}
	}
}

// readLoop discards client messages; the channel is push-only. Its error
// is how a disconnect is noticed.
func (h *Hub) readLoop(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.leave(c)
			return
		}
	}
}
