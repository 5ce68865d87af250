// Package event is the in-process publish/subscribe registry used to
// decouple the router, session and progress services from one another.
// Handlers run synchronously on the publishing goroutine, in
// subscription order per topic; no cross-topic ordering is guaranteed.
package event

import (
	"sync"

	"github.com/trezcool/darasa/core"
)

// Topic identifies one event variant.
type Topic string

// Event is the union of everything that can cross the bus. One concrete
// struct per topic keeps handlers exhaustively checkable.
type Event interface {
	Topic() Topic
}

// Handler consumes a single event.
type Handler func(Event)

type subscriber struct {
	id int
	fn Handler
}

// Bus registers handlers per topic and fans published events out to them.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic][]subscriber
	all    []subscriber // SubscribeAll handlers, delivered after topic handlers
	logger core.Logger
}

func NewBus(logger core.Logger) *Bus {
	return &Bus{
		subs:   make(map[Topic][]subscriber),
		logger: logger,
	}
}

// Subscribe registers fn for topic and returns its unsubscribe function.
func (b *Bus) Subscribe(topic Topic, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
}

// SubscribeAll registers fn for every topic.
func (b *Bus) SubscribeAll(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.all {
			if s.id == id {
				b.all = append(b.all[:i], b.all[i+1:]...)
				break
			}
		}
	}
}

// Once registers fn for topic and removes it after the first delivery.
func (b *Bus) Once(topic Topic, fn Handler) (unsubscribe func()) {
	var unsub func()
	var once sync.Once
	unsub = b.Subscribe(topic, func(e Event) {
		once.Do(func() {
			fn(e)
			unsub()
		})
	})
	return unsub
}

// Publish delivers e to topic subscribers then to SubscribeAll handlers.
// A panicking handler is logged and skipped; the rest still run.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]subscriber, 0, len(b.subs[e.Topic()])+len(b.all))
	subs = append(subs, b.subs[e.Topic()]...)
	subs = append(subs, b.all...)
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event: handler panic", map[string]interface{}{
				"topic": string(e.Topic()),
				"panic": r,
			})
		}
	}()
	s.fn(e)
}

// HasSubscribers reports whether any handler is registered for topic.
func (b *Bus) HasSubscribers(topic Topic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic]) > 0 || len(b.all) > 0
}
