package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"velancis-storefront/internal/events"
	"velancis-storefront/internal/middleware"
	"velancis-storefront/internal/observability"
	"velancis-storefront/internal/service"
	ws "velancis-storefront/internal/websocket"
)

// SnapshotSource provides the state a new subscriber is greeted with
type SnapshotSource interface {
	Snapshot() service.Snapshot
}

// WebSocketHandler streams state change events to views
type WebSocketHandler struct {
	hub      *ws.Hub
	source   SnapshotSource
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler accepting browsers from allowedOrigins
func NewWebSocketHandler(hub *ws.Hub, source SnapshotSource, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.AllowsOrigin(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// HandleConnection upgrades the request, greets the view with a snapshot and subscribes
// it to every later change
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	logger := observability.Component(r.Context(), "websocket")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn)

	// Subscribe before snapshotting so no change falls between the two
	if !h.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}

	greeting, err := json.Marshal(events.New(events.Snapshot, h.source.Snapshot()))
	if err == nil {
		err = client.Greet(greeting)
	}
	if err != nil {
		logger.Warn("failed to greet websocket client",
			slog.String("client_id", client.ID()),
			slog.String("error", err.Error()))
		h.hub.Unregister(client)
		_ = conn.Close()
		return
	}

	logger.Info("websocket client connected", slog.String("client_id", client.ID()))

	go client.WritePump()
	go client.ReadPump()
}
