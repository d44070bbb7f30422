// ABOUTME: WebSocket endpoint that turns authenticated HTTP requests into live sessions
// ABOUTME: Owns the connection write path, keepalive loop, and disconnect cleanup

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quickmarket/pulse-gateway/internal/auth"
	"github.com/quickmarket/pulse-gateway/internal/config"
	"github.com/quickmarket/pulse-gateway/internal/session"
)

// frame is the JSON envelope for every message crossing the socket,
// in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoingFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Connection wraps a websocket connection behind the session.Conn contract.
// A mutex serializes writes: the dispatcher, the sweep digest path, and the
// keepalive loop may all emit concurrently.
type Connection struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

// NewConnection wraps ws with the given write timeout.
func NewConnection(ws *websocket.Conn, writeTimeout time.Duration) *Connection {
	return &Connection{ws: ws, writeTimeout: writeTimeout}
}

// Emit writes a single event frame. Write errors are returned to the caller,
// which decides whether the connection is worth keeping.
func (c *Connection) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(outgoingFrame{Event: event, Data: payload})
}

func (c *Connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// Close tears down the underlying websocket. Safe to call more than once;
// gorilla returns an error on double close which we ignore.
func (c *Connection) Close() error {
	return c.ws.Close()
}

// SocketHandler upgrades /ws requests and drives the per-connection loop.
type SocketHandler struct {
	sessions *session.Registry
	cfg      config.SocketConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewSocketHandler builds a handler bound to the shared session registry.
func NewSocketHandler(sessions *session.Registry, cfg config.SocketConfig, logger *slog.Logger) *SocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketHandler{
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP handles GET /ws. Authentication happens upstream; a request
// without an identity in context was let through by mistake and is rejected.
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}

	conn := NewConnection(ws, h.cfg.WriteTimeout)
	sess := &session.Session{
		UserID: identity.UserID,
		Role:   identity.Role,
		Conn:   conn,
	}
	h.sessions.Set(sess)
	h.logger.Info("client connected", "user_id", identity.UserID, "role", identity.Role, "sessions", h.sessions.Len())

	if err := conn.Emit("connected", map[string]string{"user_id": identity.UserID}); err != nil {
		h.logger.Warn("connected ack failed", "user_id", identity.UserID, "error", err)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.pingLoop(ctx, conn, identity.UserID)

	h.readLoop(ws, sess)

	// Conditional removal: a newer session for the same user must survive
	// this connection's teardown.
	if h.sessions.RemoveSession(sess) {
		h.logger.Info("client disconnected", "user_id", identity.UserID, "sessions", h.sessions.Len())
	}
	_ = conn.Close()
}

func (h *SocketHandler) readLoop(ws *websocket.Conn, sess *session.Session) {
	deadline := h.cfg.PingInterval + h.cfg.PingTimeout
	_ = ws.SetReadDeadline(time.Now().Add(deadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		var msg frame
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "user_id", sess.UserID, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(deadline))
		h.handleFrame(sess, &msg)
	}
}

// handleFrame processes one inbound frame. The HTTP API is the canonical
// write path; socket frames are observational only.
func (h *SocketHandler) handleFrame(sess *session.Session, msg *frame) {
	switch msg.Event {
	case "createMessage":
		h.logger.Debug("createMessage frame received, use the HTTP API to send messages", "user_id", sess.UserID)
	case "onClientConnect":
		h.logger.Debug("client announced itself", "user_id", sess.UserID)
	default:
		h.logger.Debug("unhandled socket event", "event", msg.Event, "user_id", sess.UserID)
	}
}

func (h *SocketHandler) pingLoop(ctx context.Context, conn *Connection, userID string) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				h.logger.Debug("keepalive ping failed", "user_id", userID, "error", err)
				return
			}
		}
	}
}
