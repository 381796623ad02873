// Package bus is the in-process publish/subscribe fabric. Delivery is
// synchronous and ordered by registration; the bus keeps no history.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tabula/internal/domain"
)

type Listener func(evt domain.ServerEvent)

type registration struct {
	id string
	fn Listener
}

type Bus struct {
	mu        sync.RWMutex
	listeners []registration
	log       *slog.Logger
	now       func() time.Time
}

func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, now: time.Now}
}

// Subscribe registers a listener and returns its unsubscribe handle.
// Listeners are notified in registration order. The handle is idempotent.
func (b *Bus) Subscribe(fn Listener) func() {
	id := uuid.NewString()
	b.mu.Lock()
	b.listeners = append(b.listeners, registration{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, reg := range b.listeners {
			if reg.id == id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish builds a ServerEvent and synchronously notifies every listener
// registered at publish time. A listener panic is logged and isolated; it
// never reaches the publisher or later listeners.
func (b *Bus) Publish(eventType domain.EventType, payload map[string]any) {
	b.mu.RLock()
	listeners := make([]registration, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	evt := domain.ServerEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: b.now().UTC(),
	}

	for _, reg := range listeners {
		b.invoke(reg.fn, evt)
	}
}

func (b *Bus) invoke(fn Listener, evt domain.ServerEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event listener panicked",
				"event_type", evt.Type,
				"panic", r,
			)
		}
	}()
	fn(evt)
}

func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
