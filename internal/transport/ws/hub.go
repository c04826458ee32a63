package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"letsee/internal/model"
)

// Message is the WebSocket envelope format, both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Connection represents one participant's WebSocket connection.
type Connection struct {
	ID        string
	SessionID string
	Role      model.Role
	Send      chan []byte
}

// BroadcastMessage is a message to fan out to a session's connections.
type BroadcastMessage struct {
	SessionID string
	ToRole    model.Role // Empty means all participants
	Message   *Message
}

// Hub manages WebSocket connections per session and implements the engine's
// Broadcaster contract.
type Hub struct {
	conns map[string]map[model.Role]*Connection // sessionID -> role -> conn
	mu    sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage

	logger *slog.Logger
}

// NewHub creates a hub and starts its dispatch loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		conns:      make(map[string]map[model.Role]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.SessionID] == nil {
				h.conns[conn.SessionID] = make(map[model.Role]*Connection)
			}
			if existing, ok := h.conns[conn.SessionID][conn.Role]; ok && existing != conn {
				close(existing.Send)
			}
			h.conns[conn.SessionID][conn.Role] = conn
			h.mu.Unlock()
			h.logger.Info("participant connected", "session", conn.SessionID, "role", conn.Role)

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.conns[conn.SessionID]; ok {
				if existing, ok := conns[conn.Role]; ok && existing == conn {
					delete(conns, conn.Role)
					close(conn.Send)
					if len(conns) == 0 {
						delete(h.conns, conn.SessionID)
					}
					h.logger.Info("participant disconnected", "session", conn.SessionID, "role", conn.Role)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)
			if conns, ok := h.conns[msg.SessionID]; ok {
				for role, conn := range conns {
					if msg.ToRole != "" && role != msg.ToRole {
						continue
					}
					select {
					case conn.Send <- data:
					default:
						// Drop message if buffer full
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// ToSession sends an event to every connection bound to a session
// (implements debate.Broadcaster).
func (h *Hub) ToSession(sessionID string, event string, payload interface{}) {
	h.send(sessionID, "", event, payload)
}

// ToRole sends an event to one participant only (implements
// debate.Broadcaster).
func (h *Hub) ToRole(sessionID string, role model.Role, event string, payload interface{}) {
	h.send(sessionID, role, event, payload)
}

func (h *Hub) send(sessionID string, role model.Role, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("unmarshalable broadcast payload", "event", event, "error", err)
		return
	}
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		ToRole:    role,
		Message: &Message{
			Type:    event,
			Payload: data,
		},
	}
}
