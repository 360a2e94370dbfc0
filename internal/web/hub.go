package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"prime_pips/internal/logging"
	"prime_pips/internal/market"
	"prime_pips/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Event is one message pushed to dashboard clients.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Hub keeps the connected dashboards and fans events out to them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
		log: logging.OrNop(log),
	}
}

// HandleWebSocket upgrades the connection and keeps it alive until the client leaves.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade error", zap.Error(err))
		return
	}

	if err := h.register(conn); err != nil {
		conn.Close()
		return
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		h.unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	// Clients only listen; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// register sends the greeting under the lock so it cannot interleave with a broadcast.
func (h *Hub) register(conn *websocket.Conn) error {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Event{Type: "connection_init", Data: "connected", Timestamp: time.Now().UnixMilli()}); err != nil {
		return err
	}
	h.clients[conn] = true
	h.log.Debug("Client connected", zap.Int("clients", len(h.clients)))
	return nil
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.log.Debug("Client disconnected", zap.Int("clients", len(h.clients)))
	}
}

func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Broadcast sends an event to every connected client, dropping the ones that fail.
func (h *Hub) Broadcast(typ string, data any) {
	msg, err := json.Marshal(Event{Type: typ, Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		h.log.Error("Broadcast marshal error", zap.Error(err))
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("Write error", zap.Error(err))
			client.Close()
			delete(h.clients, client)
		}
	}
}

// PublishMarket is a market.Feed subscriber.
func (h *Hub) PublishMarket(tickers []market.Ticker) {
	h.Broadcast("market", marketEvent(tickers))
}

// PublishNotification forwards public notifications. Targeted ones stay private.
func (h *Hub) PublishNotification(n models.Notification) {
	if n.Type != models.NotificationPublic {
		return
	}
	h.Broadcast("notification", n)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		client.Close()
		delete(h.clients, client)
	}
}
