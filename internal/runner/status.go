package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/control"
)

const (
	wsSendBuffer   = 8
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StatusEmitter periodically collects a status document, keeps the latest
// one and pushes it to websocket subscribers.
type StatusEmitter struct {
	collect  func() control.StatusDocument
	interval time.Duration
	logger   *slog.Logger
	hub      *hub

	kick chan struct{}

	mu      sync.RWMutex
	latest  control.StatusDocument
	encoded []byte
}

// NewStatusEmitter creates an emitter over collect, usually
// Aggregator.Collect. A non-positive interval uses the configured default.
func NewStatusEmitter(collect func() control.StatusDocument, interval time.Duration, logger *slog.Logger) *StatusEmitter {
	if interval <= 0 {
		interval = config.DefaultStatusInterval
	}
	return &StatusEmitter{
		collect:  collect,
		interval: interval,
		logger:   logger,
		hub:      newHub(logger),
		kick:     make(chan struct{}, 1),
	}
}

// Run emits one document immediately, then every interval and whenever
// Emit is called, until ctx is cancelled.
func (e *StatusEmitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	defer e.hub.closeAll()

	e.emit()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.emit()
		case <-e.kick:
			e.emit()
		}
	}
}

// Emit requests an out-of-cycle document. It never blocks.
func (e *StatusEmitter) Emit() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *StatusEmitter) emit() {
	doc := e.collect()
	b, err := json.Marshal(doc)
	if err != nil {
		e.logger.Error("encode status", "error", err)
		return
	}

	e.mu.Lock()
	e.latest = doc
	e.encoded = b
	e.mu.Unlock()

	e.hub.broadcast(b)
}

// Latest returns the most recent document.
func (e *StatusEmitter) Latest() control.StatusDocument {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

func (e *StatusEmitter) latestJSON() []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.encoded
}

// Subscribers returns the number of connected websocket clients.
func (e *StatusEmitter) Subscribers() int { return e.hub.count() }

// ServeWS upgrades the request and streams every document to the client,
// starting with the latest one.
func (e *StatusEmitter) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	if b := e.latestJSON(); b != nil {
		c.send <- b
	}
	e.hub.add(c)

	go c.readLoop(e.hub)
	c.writeLoop(e.hub)
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// readLoop discards client frames and unregisters on the first error,
// which is how a close is observed.
func (c *wsClient) readLoop(h *hub) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read", "error", err)
			}
			h.remove(c)
			return
		}
	}
}

func (c *wsClient) writeLoop(h *hub) {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(time.Second))
}

// hub tracks websocket subscribers. A subscriber that cannot keep up is
// dropped rather than stalling the emitter.
type hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, clients: make(map[*wsClient]struct{})}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.logger.Debug("status subscriber connected", "subscribers", len(h.clients))
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *hub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
	h.logger.Debug("status subscriber disconnected", "subscribers", len(h.clients))
}

func (h *hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("dropping slow status subscriber")
			h.removeLocked(c)
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
