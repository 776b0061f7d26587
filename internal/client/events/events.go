// Package events is a small in-process publish/subscribe bus used to tell
// views that shared state changed without coupling them to each other.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Topic names a stream of events.
type Topic string

const (
	// TopicSession carries a session.Change after every state transition.
	TopicSession Topic = "session"
	// TopicSessionExpired is published when the backend rejects the stored token.
	TopicSessionExpired Topic = "session.expired"
	// TopicDashboardStale asks parent dashboards to reload bookings and children.
	TopicDashboardStale Topic = "dashboard.stale"
)

// Handler receives a published payload.
type Handler func(payload any)

type subscription struct {
	id uint64
	fn Handler
}

// Bus delivers published payloads to the handlers subscribed to a topic.
// Delivery is synchronous, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscription
	nextID uint64
	closed bool
	log    *zap.Logger
}

// NewBus creates a bus. A nil logger disables logging of handler panics.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: make(map[Topic][]subscription), log: log}
}

// Subscribe registers fn for topic and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(topic Topic, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish calls every handler of topic with payload. A panicking handler is
// logged and does not stop delivery to the others.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := append([]subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(topic, s, payload)
	}
}

func (b *Bus) deliver(topic Topic, s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("topic", string(topic)),
				zap.Any("panic", r),
			)
		}
	}()
	s.fn(payload)
}

// Close drops all subscriptions. Later Publish and Subscribe calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[Topic][]subscription)
}
