package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 16
)

// StatusMessage is the frame pushed to websocket clients.
type StatusMessage struct {
	Type      string                  `json:"type"`
	Timestamp time.Time               `json:"timestamp"`
	Label     string                  `json:"label"`
	Data      domain.ConnectionStatus `json:"data"`
}

func newStatusMessage(st domain.ConnectionStatus) StatusMessage {
	return StatusMessage{
		Type:      "status",
		Timestamp: time.Now().UTC(),
		Label:     st.Label(),
		Data:      st,
	}
}

// StatusHandler exposes the connection status as JSON and over a websocket.
//
// Routes handled:
//   - GET  /status        -> Show
//   - POST /status/check  -> Check
//   - GET  /ws/status     -> Hub.ServeWS
type StatusHandler struct {
	source   StatusSource
	hub      *StatusHub
	renderer TemplateRenderer
	logger   *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(source StatusSource, hub *StatusHub, renderer TemplateRenderer, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{source: source, hub: hub, renderer: renderer, logger: logger}
}

// Show handles GET /status. htmx polling gets the indicator fragment,
// everybody else gets JSON.
func (h *StatusHandler) Show(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()
	if r.Header.Get("HX-Request") == "true" {
		h.renderer.RenderPartial(w, "status", st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Check handles POST /status/check. Concurrent callers share one probe.
func (h *StatusHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Check(r.Context()))
}

// RegisterRoutes registers the status routes on mux.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /status", wrap(http.HandlerFunc(h.Show)))
	mux.Handle("POST /status/check", wrap(http.HandlerFunc(h.Check)))
	mux.Handle("GET /ws/status", wrap(http.HandlerFunc(h.hub.ServeWS)))
}

// =============================================================================
// Websocket hub
// =============================================================================

type statusClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StatusHub fans monitor snapshots out to websocket clients. A client whose
// buffer is full is dropped rather than slowing the others down.
type StatusHub struct {
	source   StatusSource
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*statusClient]struct{}
}

// NewStatusHub creates a hub over source. Call Run to start broadcasting.
func NewStatusHub(source StatusSource, logger *slog.Logger) *StatusHub {
	return &StatusHub{
		source: source,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*statusClient]struct{}),
	}
}

// Run forwards every published status until ctx is done, then disconnects
// all clients.
func (h *StatusHub) Run(ctx context.Context) {
	updates, unsubscribe := h.source.Subscribe()
	defer unsubscribe()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			h.broadcast(st)
		}
	}
}

// Clients returns the number of connected clients.
func (h *StatusHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *StatusHub) broadcast(st domain.ConnectionStatus) {
	msg, err := json.Marshal(newStatusMessage(st))
	if err != nil {
		h.logger.Error("failed to encode status message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("websocket client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *StatusHub) register(c *statusClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *StatusHub) unregister(c *statusClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *StatusHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeWS upgrades the request and streams status frames, starting with the
// current status. The default upgrader rejects cross-origin requests.
func (h *StatusHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &statusClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	if msg, err := json.Marshal(newStatusMessage(h.source.Status())); err == nil {
		c.send <- msg
	}
	h.register(c)
	h.logger.Debug("websocket client connected", "clients", h.Clients())

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client frames and keeps the read deadline fresh. It
// returns when the connection closes.
func (h *StatusHub) readPump(c *statusClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

func (h *StatusHub) writePump(c *statusClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
