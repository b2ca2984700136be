package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/events"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

// Envelope is the wire frame pushed to connected clients.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// Hub fans realtime events out to websocket connections keyed by user id.
// Delivery is best-effort; a user with no open connection simply misses the
// push and catches up through the pull APIs.
type Hub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[uuid.UUID]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[uuid.UUID]map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the request and keeps the connection registered
// until the peer goes away. Clients identify themselves with ?user=<uuid>.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user"))
	if err != nil {
		http.Error(w, "user parameter required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.register(userID, conn)
	h.logger.Info("realtime connection opened", "user_id", userID)

	defer func() {
		h.unregister(userID, conn)
		_ = conn.Close()
		h.logger.Debug("realtime connection closed", "user_id", userID)
	}()

	// Drain inbound frames so pings and close frames are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Handle implements events.DeliveryHandler by pushing the outbox entry to
// every open connection of the addressed user.
func (h *Hub) Handle(_ context.Context, entry events.OutboxEntry) error {
	frame := Envelope{
		Type:      entry.Type,
		Payload:   entry.Payload,
		Timestamp: entry.CreatedAt.UTC().Format(time.RFC3339),
	}

	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.conns[entry.UserID]))
	for conn := range h.conns[entry.UserID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.WriteJSON(frame); err != nil {
			h.logger.Debug("realtime push failed", "error", err, "user_id", entry.UserID)
			h.unregister(entry.UserID, conn)
			_ = conn.Close()
		}
	}
	return nil
}

// ConnectedUsers reports how many distinct users hold open connections.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) register(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
}

func (h *Hub) unregister(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[userID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}
