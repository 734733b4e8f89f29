package events

import (
	"sync"
	"time"
)

// Handler receives a published event. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(GameEvent)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is the typed publish/subscribe dispatch table. The observer list for a
// kind may be empty; publishing is fire-and-forget.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
	wildcard []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe registers h for one event kind.
func (b *Bus) Subscribe(t EventType, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[t] = removeSubscription(b.handlers[t], id)
	}
}

// SubscribeAll registers h for every event kind. Wildcard handlers run after
// the kind-specific ones.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.wildcard = append(b.wildcard, subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = removeSubscription(b.wildcard, id)
	}
}

func removeSubscription(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish stamps the event and delivers it to every subscriber in
// registration order. Handlers may subscribe or publish from inside a
// callback; they see the subscriber list as of this call.
func (b *Bus) Publish(e GameEvent) GameEvent {
	if e.ID == "" {
		e.ID = GenerateEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	specific := b.handlers[e.Type]
	wildcard := b.wildcard
	b.mu.RUnlock()

	for _, s := range specific {
		s.handler(e)
	}
	for _, s := range wildcard {
		s.handler(e)
	}
	return e
}

// SubscriberCount returns the number of handlers that would see kind t.
func (b *Bus) SubscriberCount(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t]) + len(b.wildcard)
}
