// Package hub is the server end of the event channel. Each client holds one
// WebSocket connection; the hub greets it with server.hello and then relays
// every broadcast event to all clients in broadcast order.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/contactsync/internal/logging"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
)

type Hub struct {
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	broadcast    chan protocol.Event
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration

	logger logging.Logger
	now    func() time.Time
}

// New creates a hub with a broadcast queue of the given size.
func New(buffer int, writeTimeout time.Duration, logger logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		clients:      make(map[*websocket.Conn]struct{}),
		broadcast:    make(chan protocol.Event, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger.With("module", "event_hub"),
		now:          time.Now,
	}
}

// Broadcast queues e for every connected client. It blocks while the queue is
// full and returns immediately once the hub has stopped.
func (h *Hub) Broadcast(e protocol.Event) {
	select {
	case h.broadcast <- e:
	case <-h.done:
	}
}

// Run relays queued events until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-h.broadcast:
			h.send(ctx, e)
		}
	}
}

func (h *Hub) send(ctx context.Context, e protocol.Event) {
	data, err := protocol.Encode(e)
	if err != nil {
		h.logger.Error(ctx, "failed to encode event", "type", e.Type(), "error", err)
		return
	}

	h.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.clientsMu.RUnlock()

	for _, conn := range clients {
		if err := h.write(ctx, conn, data); err != nil {
			h.logger.Warn(ctx, "failed to send event", "type", e.Type(), "error", err)
			h.removeClient(conn, websocket.StatusInternalError)
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP upgrades the request and holds the connection until the client
// goes away or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	// hello goes out before the client can see any broadcast
	hello, err := protocol.Encode(protocol.NewHello(h.now()))
	if err == nil {
		err = h.write(ctx, conn, hello)
	}
	if err != nil {
		h.logger.Warn(ctx, "failed to greet client", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Info(ctx, "client connected", "clients", n, "remote", r.RemoteAddr)

	defer h.removeClient(conn, websocket.StatusNormalClosure)
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn, code websocket.StatusCode) {
	h.clientsMu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.clientsMu.Unlock()

	if ok {
		_ = conn.Close(code, "")
		h.logger.Info(context.Background(), "client disconnected", "clients", n)
	}
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() { close(h.done) })

	h.clientsMu.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]struct{})
	h.clientsMu.Unlock()

	for conn := range clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
