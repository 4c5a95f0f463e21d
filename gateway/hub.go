package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/pkg/buffer"
	"github.com/c360/hapticlink/provider/mock"
)

const (
	clientBuffer = 32
	historySize  = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Hub broadcasts envelopes to every connected WebSocket client. A client
// whose buffer is full misses frames rather than stalling the broadcaster.
// Hub implements mock.Toaster.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	history  *buffer.CircularBuffer[json.RawMessage]

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

var _ mock.Toaster = (*Hub)(nil)

// NewHub creates a hub. A nil checkOrigin applies the same-host check of
// websocket.Upgrader.
func NewHub(logger *slog.Logger, checkOrigin func(*http.Request) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	history, _ := buffer.NewCircularBuffer[json.RawMessage](historySize)
	return &Hub{
		history: history,
		logger: logger.With("component", "gateway-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish broadcasts a provider event
func (h *Hub) Publish(e haptic.Event) {
	h.Broadcast(string(e.Type), e)
}

// Toast broadcasts a toast
func (h *Hub) Toast(t mock.Toast) {
	h.Broadcast(EnvelopeToast, t)
}

// Broadcast wraps payload in an Envelope of type typ and queues it for
// every client
func (h *Hub) Broadcast(typ string, payload any) {
	data, err := newEnvelope(typ, payload)
	if err != nil {
		h.logger.Warn("Failed to encode envelope", "type", typ, "error", err)
		return
	}
	h.history.Write(data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("Client buffer full, frame dropped", "type", typ)
		}
	}
}

// History returns the most recent broadcast envelopes, oldest first
func (h *Hub) History() []json.RawMessage {
	return h.history.Snapshot()
}

func newEnvelope(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
		Payload:   raw,
	})
}

// ServeWS upgrades the request and registers the client. hello, when not
// nil, is sent as the first frame.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, hello []byte) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer), done: make(chan struct{})}
	if hello != nil {
		c.send <- hello
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Debug("Client connected", "remote", r.RemoteAddr)
	go h.writeLoop(c)
	go h.readLoop(c)
}

// readLoop discards client frames and removes the client when it goes away
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.Debug("Client disconnected")
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their loops to exit
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
	h.wg.Wait()
}
