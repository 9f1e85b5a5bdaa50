package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TokenMessage is pushed to stream clients for every captured token.
type TokenMessage struct {
	Type  string `json:"type"` // Always "TOKEN"
	Tick  uint64 `json:"tick"`
	Token string `json:"token"`
}

// Hub fans captured tokens out to websocket clients. Slow clients drop
// messages instead of stalling the engine.
type Hub struct {
	MaxClients int

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	latest  []byte
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub accepting at most maxClients connections.
func NewHub(maxClients int) *Hub {
	return &Hub{
		MaxClients: maxClients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // read-only feed
		},
		clients: make(map[*streamClient]struct{}),
	}
}

// Broadcast sends a token to every connected client. Wired to Simulation.OnToken.
func (h *Hub) Broadcast(tick uint64, token string) {
	b, err := json.Marshal(TokenMessage{Type: "TOKEN", Tick: tick, Token: token})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = b
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			// Client is behind; it catches up on the next token.
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.MaxClients > 0 && len(h.clients) >= h.MaxClients {
		return false
	}
	h.clients[c] = struct{}{}
	// Catch-up: the newest token goes out first.
	if h.latest != nil {
		c.send <- h.latest
	}
	return true
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ServeHTTP upgrades the request and streams tokens until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.MaxClients > 0 && h.Clients() >= h.MaxClients {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := &streamClient{conn: conn, send: make(chan []byte, 16)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many stream connections"),
			time.Now().Add(time.Second))
		return
	}
	defer h.unregister(c)

	slog.Info("stream client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})

	// Reader loop: only detects disconnects.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case b := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			slog.Info("stream client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}
