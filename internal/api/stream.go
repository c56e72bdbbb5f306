package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptopulse/internal/strategy"
)

// ErrNoSignal is returned by Hub.Latest before any signal was seen.
var ErrNoSignal = errors.New("no signal yet")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes signals to WebSocket clients and remembers the latest one per
// symbol. A new client first receives the latest signals.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string]json.RawMessage
	signals map[string]strategy.Signal
	log     *slog.Logger

	// OnDrop is called when a slow client misses a message.
	OnDrop func()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		latest:  make(map[string]json.RawMessage),
		signals: make(map[string]strategy.Signal),
		log:     log.With("component", "hub"),
	}
}

// Run broadcasts signals from sigCh until ctx is cancelled or sigCh closes,
// then disconnects all clients.
func (h *Hub) Run(ctx context.Context, sigCh <-chan strategy.Signal) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			h.Broadcast(sig)
		}
	}
}

// Broadcast sends sig to every connected client.
func (h *Hub) Broadcast(sig strategy.Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		h.log.Error("marshal signal", "error", err)
		return
	}

	h.mu.Lock()
	h.latest[sig.Symbol] = data
	h.signals[sig.Symbol] = sig
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// Latest implements LatestSource from memory.
func (h *Hub) Latest(_ context.Context, symbol string) (strategy.Signal, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sig, ok := h.signals[symbol]
	if !ok {
		return strategy.Signal{}, ErrNoSignal
	}
	return sig, nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams signals to the peer.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64)}

	h.mu.Lock()
	for _, data := range h.latest {
		select {
		case c.send <- data:
		default:
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
