// Package websocket pushes committed state changes to connected views.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"velancis-storefront/internal/events"
	"velancis-storefront/internal/observability"
)

var (
	ErrHubClosed  = errors.New("websocket hub is closed")
	ErrHubBacklog = errors.New("websocket hub backlog is full")
)

type outbound struct {
	kind string
	data []byte
}

// Hub maintains connected clients and broadcasts events to all of them
type Hub struct {
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	// closed when Run returns
	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Info("event stream client registered",
				slog.String("client_id", client.id),
				slog.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg.data:
					observability.WebSocketMessagesSent.WithLabelValues(msg.kind).Inc()
				default:
					// slow consumer; drop it rather than stall every other client
					slog.Warn("event stream client too slow, disconnecting",
						slog.String("client_id", client.id))
					h.unregisterClient(client)
				}
			}
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
	slog.Info("event stream client unregistered",
		slog.String("client_id", client.id))
}

// shutdown closes every client's send channel so their write pumps exit
func (h *Hub) shutdown() {
	close(h.done)

	for client := range h.clients {
		h.unregisterClient(client)
	}

	slog.Info("hub shutdown complete")
}

// Name identifies the hub as an event sink
func (h *Hub) Name() string {
	return "websocket"
}

// Deliver queues an event for every connected client. It never waits for the hub loop.
func (h *Hub) Deliver(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	return h.enqueue(outbound{kind: string(e.Type), data: data})
}

// Broadcast sends raw data to every client
func (h *Hub) Broadcast(kind string, data []byte) error {
	return h.enqueue(outbound{kind: kind, data: data})
}

func (h *Hub) enqueue(msg outbound) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.broadcast <- msg:
		return nil
	default:
		return ErrHubBacklog
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
