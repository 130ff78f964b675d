// Package events carries state-change notifications from the stores to whoever
// renders them.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"velancis-storefront/internal/observability"
)

// Type names what changed
type Type string

const (
	SessionChanged  Type = "session.changed"
	CartChanged     Type = "cart.changed"
	WishlistChanged Type = "wishlist.changed"
	// Snapshot greets a new subscriber with the full current state
	Snapshot Type = "snapshot"
)

// Event is a committed state change. Payload is the public view of the new state.
type Event struct {
	Type    Type      `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// New stamps an event with the current time
func New(t Type, payload any) Event {
	return Event{Type: t, At: time.Now().UTC(), Payload: payload}
}

// Publisher is what the stores publish to
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Sink receives every event published on a Bus
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Bus fans events out to its sinks. A failing sink is logged and never blocks the others.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

// AddSink registers another sink
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Deliver(ctx, e); err != nil {
			observability.FromContext(ctx).Warn("event delivery failed",
				slog.String("sink", s.Name()),
				slog.String("type", string(e.Type)),
				slog.String("error", err.Error()))
		}
	}
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
