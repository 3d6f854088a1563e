package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Broadcast Hub — fans discovered tokens out to connected viewers
// ---------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks viewer connections and broadcasts JSON messages to all of them.
// Broadcasting snapshots the client set under a read lock and sends outside
// it; clients whose queue has shut down are pruned under the write lock.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client

	// Stats.
	broadcasts atomic.Int64
	pruned     atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]*client)}
}

// ServeWS upgrades the request and keeps the connection registered until the
// viewer goes away. Inbound frames are read and discarded; the hub is
// broadcast-only.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("broadcast: upgrade failed")
		return
	}
	id := h.register(conn)
	log.Info().Str("client", id.String()).Msg("broadcast: viewer connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(id)
	log.Info().Str("client", id.String()).Msg("broadcast: viewer disconnected")
}

// Broadcast marshals v once and enqueues it to every connected viewer.
// Clients that have shut down are removed.
func (h *Hub) Broadcast(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.broadcasts.Add(1)

	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	var failed []uuid.UUID
	for _, c := range snapshot {
		if !c.enqueue(payload) {
			failed = append(failed, c.id)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			if c, ok := h.clients[id]; ok {
				delete(h.clients, id)
				c.shutdown()
				h.pruned.Add(1)
			}
		}
		h.mu.Unlock()
	}
	return nil
}

// Len returns the number of connected viewers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) uuid.UUID {
	c := newClient(conn)
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	return c.id
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		c.shutdown()
	}
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Clients    int   `json:"clients"`
	Broadcasts int64 `json:"broadcasts"`
	Pruned     int64 `json:"pruned"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Clients:    h.Len(),
		Broadcasts: h.broadcasts.Load(),
		Pruned:     h.pruned.Load(),
	}
}

// ---------------------------------------------------------------------------
// Client — one viewer connection with an unbounded send queue
// ---------------------------------------------------------------------------

// client decouples broadcasters from slow sockets: enqueue never blocks,
// a dedicated writer drains the queue in order.
type client struct {
	id   uuid.UUID
	conn *websocket.Conn

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{id: uuid.New(), conn: conn}
	c.cond = sync.NewCond(&c.mu)
	go c.writeLoop()
	return c
}

// enqueue appends a message; false means the client has shut down.
func (c *client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.queue = append(c.queue, payload)
	c.cond.Signal()
	return true
}

func (c *client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cond.Signal()
	c.mu.Unlock()
	c.conn.Close()
}

func (c *client) writeLoop() {
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed && len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		payload := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			// The read loop or a broadcast prune will clean up the entry.
			c.shutdown()
			return
		}
	}
}
