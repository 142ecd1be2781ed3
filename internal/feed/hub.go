// Package feed streams committed facts to WebSocket clients.
package feed

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"portfolio-vault/internal/domain"
	"portfolio-vault/internal/observability"
)

// HubConfig configures client connections.
type HubConfig struct {
	// SendBuffer is the number of messages queued per client before it is dropped.
	SendBuffer int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a client may stay silent (no pong) before it is closed.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   64,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Message is the JSON frame sent for every fact.
type Message struct {
	ID        string          `json:"id"`
	Emitter   string          `json:"emitter"`
	Seq       int64           `json:"seq"`
	Kind      domain.FactKind `json:"kind"`
	Timestamp int64           `json:"timestamp"`
	Event     json.RawMessage `json:"event"`
}

// NewMessage converts a stored fact into its wire frame.
func NewMessage(r *domain.FactRecord) Message {
	return Message{
		ID:        r.FactID,
		Emitter:   r.Emitter,
		Seq:       r.Seq,
		Kind:      r.Kind,
		Timestamp: r.Timestamp,
		Event:     r.Payload,
	}
}

type client struct {
	conn  *websocket.Conn
	send  chan []byte
	kinds map[domain.FactKind]struct{} // empty means all kinds
}

func (c *client) wants(kind domain.FactKind) bool {
	if len(c.kinds) == 0 {
		return true
	}
	_, ok := c.kinds[kind]
	return ok
}

// Hub fans committed facts out to connected clients.
// A client whose send buffer is full is dropped rather than blocking the hub.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	wg sync.WaitGroup
}

// NewHub creates a hub. A nil config selects DefaultHubConfig.
func NewHub(config *HubConfig, logger *zap.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams facts until the client goes away.
// The optional query parameter kinds=Deposit,Withdraw filters by fact kind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:  conn,
		send:  make(chan []byte, h.config.SendBuffer),
		kinds: parseKinds(r.URL.Query().Get("kinds")),
	}
	if !h.register(c) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	h.wg.Add(2)
	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast queues records for every interested client.
func (h *Hub) Broadcast(records []*domain.FactRecord) {
	if len(records) == 0 {
		return
	}

	type frame struct {
		kind domain.FactKind
		data []byte
	}
	frames := make([]frame, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(NewMessage(r))
		if err != nil {
			h.logger.Warn("encode fact frame", zap.String("fact_id", r.FactID), zap.Error(err))
			continue
		}
		frames = append(frames, frame{r.Kind, data})
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		for _, f := range frames {
			if !c.wants(f.kind) {
				continue
			}
			select {
			case c.send <- f.data:
			default:
				h.logger.Warn("dropping slow feed client")
				h.dropLocked(c)
			}
			if _, ok := h.clients[c]; !ok {
				break
			}
		}
	}
	observability.SetFeedClients(len(h.clients))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
	observability.SetFeedClients(0)
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	observability.SetFeedClients(len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
		observability.SetFeedClients(len(h.clients))
	}
}

// dropLocked removes c and closes its send channel; the write loop then closes the socket.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readLoop discards client frames; it exists to process pongs and notice disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()

	c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister(c)
			return
		}
	}
}

func parseKinds(raw string) map[domain.FactKind]struct{} {
	if raw == "" {
		return nil
	}
	kinds := make(map[domain.FactKind]struct{})
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[domain.FactKind(k)] = struct{}{}
		}
	}
	return kinds
}
