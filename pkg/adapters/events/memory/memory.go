package memory

import (
	"context"
	"sync"

	"github.com/pentaflow/pentaflow/pkg/domain"
	"github.com/pentaflow/pentaflow/pkg/ports"
)

// EventBus implements ports.EventBus with in-process handlers. Used
// for tests and for running without Redis.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]ports.EventHandler
	closed      bool
}

// NewEventBus creates an empty in-memory event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]ports.EventHandler),
	}
}

// Publish delivers the event to every handler subscribed to the topic.
// Handlers run asynchronously; their errors do not affect the caller.
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	handlers := make([]ports.EventHandler, len(e.subscribers[topic]))
	copy(handlers, e.subscribers[topic])
	e.mu.RUnlock()

	for _, handler := range handlers {
		go func(h ports.EventHandler) {
			_ = h(ctx, event)
		}(handler)
	}
	return nil
}

// Subscribe registers a handler for a topic.
func (e *EventBus) Subscribe(_ context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.subscribers[topic] = append(e.subscribers[topic], handler)
	return nil
}

// Close drops all subscriptions.
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.subscribers = make(map[string][]ports.EventHandler)
	return nil
}
