// Package hub fans committed state out to overlay pages over WebSockets.
// Every client gets a full snapshot on connect, then per-slice patch frames
// as the tree changes. The hub subscribes to the store once; per-client
// delivery is decoupled through bounded send queues so a stalled browser
// never backs up the dispatch loop.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"streamglass/internal/observability/metrics"
	"streamglass/internal/state"
	"streamglass/internal/store"
)

const (
	// sendBuffer bounds the per-client frame queue. A client that falls this
	// far behind is disconnected; it reconnects and receives a fresh snapshot.
	sendBuffer = 64

	defaultHeartbeat = 30 * time.Second
)

// snapshotFrame carries the whole tree, sent once per connection.
type snapshotFrame struct {
	Type  string     `json:"type"`
	State state.Tree `json:"state"`
}

// patchFrame carries one changed slice.
type patchFrame struct {
	Type  string `json:"type"`
	Slice string `json:"slice"`
	Data  any    `json:"data"`
}

// Config assembles a Hub.
type Config struct {
	Store     *store.Store
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	Heartbeat time.Duration
}

// Hub tracks connected overlay clients and forwards state changes to them.
type Hub struct {
	store     *store.Store
	logger    *slog.Logger
	rec       *metrics.Recorder
	heartbeat time.Duration

	mu          sync.Mutex
	clients     map[*client]struct{}
	unsubscribe func()
	closed      bool
}

type client struct {
	conn *Conn
	send chan []byte
	once sync.Once
}

// New builds a hub and subscribes it to the store. The subscription watches
// tree identity: any committed change to any slice wakes the hub exactly once.
func New(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Default()
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	h := &Hub{
		store:     cfg.Store,
		logger:    logger.With("component", "hub"),
		rec:       rec,
		heartbeat: heartbeat,
		clients:   make(map[*client]struct{}),
	}
	h.unsubscribe = store.Observe(cfg.Store,
		func(t state.Tree) state.Tree { return t },
		h.broadcast)
	return h
}

// HandleOverlay upgrades the request and streams state until the client goes
// away. Intended to be mounted on the overlay websocket route.
func (h *Hub) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	conn, err := Accept(w, r)
	if err != nil {
		h.logger.Warn("overlay upgrade failed", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	snapshot, err := json.Marshal(snapshotFrame{Type: "snapshot", State: h.store.State()})
	if err != nil {
		h.logger.Error("snapshot encode failed", "error", err)
		conn.Close()
		return
	}
	c.send <- snapshot

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.rec.ClientConnected()
	h.logger.Info("overlay connected", "remote", r.RemoteAddr, "clients", total)

	go h.writeLoop(c)
	h.readLoop(c)

	h.drop(c)
	h.logger.Info("overlay disconnected", "remote", r.RemoteAddr)
}

// broadcast diffs the two trees slice by slice and queues a patch frame per
// changed slice. Runs synchronously on the dispatch goroutine, so it only
// marshals and enqueues; all network I/O stays on the client write loops.
func (h *Hub) broadcast(prev, next state.Tree) {
	frames := make([][]byte, 0, 4)
	appendPatch := func(name string, changed bool, data any) {
		if !changed {
			return
		}
		payload, err := json.Marshal(patchFrame{Type: "patch", Slice: name, Data: data})
		if err != nil {
			h.logger.Error("patch encode failed", "slice", name, "error", err)
			return
		}
		frames = append(frames, payload)
	}
	appendPatch("connection", prev.Connection != next.Connection, next.Connection)
	appendPatch("broadcaster", prev.Broadcaster != next.Broadcaster, next.Broadcaster)
	appendPatch("counters", prev.Counters != next.Counters, next.Counters)
	appendPatch("health", prev.Health != next.Health, next.Health)
	appendPatch("alerts", prev.Alerts != next.Alerts, next.Alerts)
	appendPatch("latest", prev.Latest != next.Latest, next.Latest)
	appendPatch("goals", prev.Goals != next.Goals, next.Goals)
	appendPatch("activity", prev.Activity != next.Activity, next.Activity)
	appendPatch("stream", prev.Stream != next.Stream, next.Stream)
	if len(frames) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		for _, payload := range frames {
			select {
			case c.send <- payload:
			default:
				// Queue full; the client is too slow to keep a consistent
				// view, so cut it loose and let it resync on reconnect.
				h.logger.Warn("overlay client lagging, dropping connection")
				delete(h.clients, c)
				h.closeClient(c)
				break
			}
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteText(payload); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop consumes inbound frames. Overlay pages send nothing meaningful;
// reading keeps ping/pong flowing and detects the peer closing.
func (h *Hub) readLoop(c *client) {
	for {
		deadline := time.Now().Add(h.heartbeat * 3)
		if _, err := c.conn.ReadMessage(deadline); err != nil {
			return
		}
	}
}

// drop unregisters and closes a client. Safe to call more than once.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if present {
		h.closeClient(c)
	}
}

func (h *Hub) closeClient(c *client) {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
		h.rec.ClientDisconnected()
	})
}

// ClientCount reports the number of connected overlay pages.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches the hub from the store and disconnects every client.
func (h *Hub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for _, c := range clients {
		h.closeClient(c)
	}
}
