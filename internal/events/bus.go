package events

import (
	"sync"

	"github.com/spitkorean/billing-service/internal/domain"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// Type identifies a domain event
type Type string

const (
	PaymentSucceeded    Type = "payment-succeeded"
	PaymentFailed       Type = "payment-failed"
	SubscriptionUpdated Type = "subscription-updated"
	SubscriptionDeleted Type = "subscription-deleted"
)

// Event is a typed domain event with its payload
type Event struct {
	Type         Type                 `json:"type"`
	Subscription *domain.Subscription `json:"subscription,omitempty"`
	ProductIDs   []domain.ProductID   `json:"product_ids,omitempty"`
	Err          string               `json:"error,omitempty"`
}

// Handler receives published events
type Handler func(Event)

// Bus is an in-process typed event emitter. It replaces string-keyed
// window events with explicit handler registration; dispatch is
// synchronous and in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
	log      *logger.Logger
}

// NewBus creates a new event bus
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[t] = append(b.handlers[t], h)
	idx := len(b.handlers[t]) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.handlers[t]) && b.handlers[t][idx] != nil {
			b.handlers[t][idx] = nil
		}
	}
}

// SubscribeAll registers a handler for every event type
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = append(b.all, h)
	idx := len(b.all) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.all) && b.all[idx] != nil {
			b.all[idx] = nil
		}
	}
}

// Publish delivers the event to all registered handlers
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	typed := make([]Handler, len(b.handlers[e.Type]))
	copy(typed, b.handlers[e.Type])
	all := make([]Handler, len(b.all))
	copy(all, b.all)
	b.mu.RUnlock()

	b.log.Debugw("Publishing domain event", "type", e.Type)

	for _, h := range typed {
		if h != nil {
			h(e)
		}
	}
	for _, h := range all {
		if h != nil {
			h(e)
		}
	}
}
