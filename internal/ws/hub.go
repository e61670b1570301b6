package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/platebook/importer-backend/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	clientBufSize  = 64
	maxMessageSize = 1 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Status events are read-only and carry no credentials; the UI connects
	// from arbitrary origins during local development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	out  chan []byte
}

// Hub fans status events out to every connected websocket client. Each client
// gets a buffered outbound channel; a client that cannot keep up is dropped
// rather than blocking the broadcast path.
type Hub struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	server *http.Server
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "StatusHub"),
		clients: make(map[*client]struct{}),
	}
}

// Broadcast sends v to every connected client. Slow clients are disconnected;
// the send never blocks the caller.
func (h *Hub) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var stale []*client
	for c := range h.clients {
		select {
		case c.out <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Warn("Dropping slow websocket client")
		h.removeClient(c)
	}
	return nil
}

// ClientCount reports connected clients. Used by tests and the health detail.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the connection until the client
// goes away or the hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, out: make(chan []byte, clientBufSize)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("Websocket client connected", "clients", h.ClientCount())

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.out:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.removeClient(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.removeClient(c)
				return
			}
		}
	}
}

// readLoop drains inbound frames so pongs and close frames are processed.
// Clients never send application data.
func (h *Hub) readLoop(c *client) {
	defer h.removeClient(c)
	c.conn.SetReadLimit(maxMessageSize)
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

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		close(c.out)
		_ = c.conn.Close()
	}
}

// Run serves the hub on its own listener at /ws. Blocks until the server
// stops; http.ErrServerClosed is swallowed as a normal shutdown.
func (h *Hub) Run(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)

	h.mu.Lock()
	h.server = &http.Server{Addr: addr, Handler: mux}
	srv := h.server
	h.mu.Unlock()

	h.log.Info("Status websocket listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener and closes every client connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	srv := h.server
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.removeClient(c)
	}
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
