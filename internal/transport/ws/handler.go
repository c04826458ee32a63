package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"letsee/internal/debate"
	"letsee/internal/model"
	"letsee/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Handler upgrades HTTP connections and bridges WebSocket events to the
// session engines.
type Handler struct {
	hub      *Hub
	registry *registry.Registry
	upgrader websocket.Upgrader
	maxLen   int
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler. allowedOrigins of ["*"] disables
// the origin check.
func NewHandler(hub *Hub, reg *registry.Registry, allowedOrigins []string, maxArgumentLength int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:      hub,
		registry: reg,
		maxLen:   maxArgumentLength,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

type joinPayload struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
}

type vetoPayload struct {
	Topic string `json:"topic"`
}

type customTopicPayload struct {
	Topic string `json:"topic"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// ServeHTTP handles GET /ws. The first frame must be a join_session message
// binding the connection to a session and role.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	go h.serve(ws)
}

func (h *Handler) serve(ws *websocket.Conn) {
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))

	conn, engine, ok := h.handshake(ws)
	if !ok {
		ws.Close()
		return
	}

	snap, err := engine.Connect(conn.Role, conn.ID)
	if err != nil {
		h.sendError(ws, "unable to join session")
		ws.Close()
		return
	}

	h.hub.Register(conn)
	// Catch the (re)joining participant up on the current state.
	h.hub.ToRole(conn.SessionID, conn.Role, debate.EventSessionUpdate, snap)

	go h.writePump(ws, conn)
	h.readPump(ws, conn, engine)
}

// handshake reads the initial join_session frame and resolves the engine.
func (h *Handler) handshake(ws *websocket.Conn) (*Connection, *debate.Engine, bool) {
	var msg Message
	if err := ws.ReadJSON(&msg); err != nil {
		return nil, nil, false
	}
	if msg.Type != "join_session" {
		h.sendError(ws, "first message must be join_session")
		return nil, nil, false
	}
	var join joinPayload
	if err := json.Unmarshal(msg.Payload, &join); err != nil {
		h.sendError(ws, "malformed join_session payload")
		return nil, nil, false
	}
	role := model.Role(join.Role)
	if role != model.RolePro && role != model.RoleCon {
		h.sendError(ws, "role must be pro or con")
		return nil, nil, false
	}
	engine, err := h.registry.Get(join.SessionID)
	if err != nil {
		h.sendError(ws, "session not found")
		return nil, nil, false
	}
	conn := &Connection{
		ID:        uuid.NewString(),
		SessionID: join.SessionID,
		Role:      role,
		Send:      make(chan []byte, 64),
	}
	return conn, engine, true
}

func (h *Handler) readPump(ws *websocket.Conn, conn *Connection, engine *debate.Engine) {
	defer func() {
		h.hub.Unregister(conn)
		engine.Disconnect(conn.Role, conn.ID)
		ws.Close()
	}()

	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "session", conn.SessionID, "error", err)
			}
			return
		}
		if err := h.dispatch(conn, engine, &msg); err != nil {
			h.hub.ToRole(conn.SessionID, conn.Role, debate.EventSessionError, map[string]string{
				"message": err.Error(),
			})
		}
	}
}

func (h *Handler) dispatch(conn *Connection, engine *debate.Engine, msg *Message) error {
	switch msg.Type {
	case "veto_topic":
		var p vetoPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return engine.Veto(conn.Role, p.Topic)
	case "set_custom_topic":
		var p customTopicPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return engine.ProposeCustomTopic(conn.Role, p.Topic)
	case "coin_toss_complete":
		return engine.CoinTossAck(conn.Role)
	case "send_message":
		var p messagePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return engine.SubmitMessage(conn.Role, p.Message, h.maxLen)
	case "end_debate":
		return engine.EndDebate(conn.Role)
	default:
		h.logger.Debug("unknown websocket event", "type", msg.Type)
		return nil
	}
}

func (h *Handler) writePump(ws *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data, ok := <-conn.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendError(ws *websocket.Conn, reason string) {
	payload, _ := json.Marshal(map[string]string{"message": reason})
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	ws.WriteJSON(&Message{Type: debate.EventSessionError, Payload: payload})
}
