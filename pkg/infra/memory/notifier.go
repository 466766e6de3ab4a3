package memory

import (
	"context"
	"sync"
)

// Event is one recorded notification.
type Event struct {
	Type    string
	Payload map[string]any
}

// Notifier records notifications instead of dispatching them.
type Notifier struct {
	mu     sync.Mutex
	events []Event
}

// NewNotifier creates a new recording Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Notify(ctx context.Context, event string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{Type: event, Payload: payload})
	return nil
}

// Events returns a copy of everything recorded so far.
func (n *Notifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

// EventsOf returns the recorded events of one type.
func (n *Notifier) EventsOf(event string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == event {
			out = append(out, e)
		}
	}
	return out
}
