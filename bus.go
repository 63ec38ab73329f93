package wvc

import (
	"encoding/json"
	"sync"
)

// Listener wraps a callback so it can be compared by identity. Go funcs are
// not comparable, so subscriptions are keyed on the *Listener instead.
type Listener struct {
	fn func(payload json.RawMessage)
}

// Listen builds a Listener for fn.
func Listen(fn func(payload json.RawMessage)) *Listener {
	return &Listener{fn: fn}
}

// EventBus is a multi-subscriber registry keyed by event name. Subscribers run
// synchronously, in registration order, against a snapshot taken before the
// first one is invoked.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string][]*Listener
	call func(event string, l *Listener, payload json.RawMessage)
}

func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]*Listener),
	}
}

// On subscribes l to event. It reports false when l is nil or already
// subscribed to that event.
func (b *EventBus) On(event string, l *Listener) bool {
	if l == nil || l.fn == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.subs[event] {
		if existing == l {
			return false
		}
	}
	b.subs[event] = append(b.subs[event], l)
	return true
}

// Off removes l from event. Removing an unknown listener is a no-op.
func (b *EventBus) Off(event string, l *Listener) bool {
	if l == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[event]
	for i, existing := range list {
		if existing != l {
			continue
		}
		next := make([]*Listener, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, event)
		} else {
			b.subs[event] = next
		}
		return true
	}
	return false
}

// Emit invokes every subscriber of event and returns how many ran.
func (b *EventBus) Emit(event string, payload json.RawMessage) int {
	b.mu.RLock()
	snapshot := append([]*Listener(nil), b.subs[event]...)
	call := b.call
	b.mu.RUnlock()

	for _, l := range snapshot {
		if call != nil {
			call(event, l, payload)
			continue
		}
		l.fn(payload)
	}
	return len(snapshot)
}

// Count returns the number of subscribers for event.
func (b *EventBus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Events lists the event names that currently have subscribers.
func (b *EventBus) Events() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.subs))
	for event := range b.subs {
		out = append(out, event)
	}
	return out
}

func (b *EventBus) setInvoker(call func(event string, l *Listener, payload json.RawMessage)) {
	b.mu.Lock()
	b.call = call
	b.mu.Unlock()
}
