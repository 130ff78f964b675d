package testutil

import (
	"context"
	"sync"

	"velancis-storefront/internal/events"
)

// EventRecorder is an events.Publisher that keeps everything published to it
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *EventRecorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Count returns how many events of type t were published
func (r *EventRecorder) Count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Last returns the most recent event of type t
func (r *EventRecorder) Last(t events.Type) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}
