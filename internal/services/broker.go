package services

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Unsubscribe removes exactly one subscription; extra calls do nothing
type Unsubscribe func()

type subscription[T any] struct {
	id      uint64
	handler func(T)
}

type delivery[T any] struct {
	event T
	subs  []subscription[T]
}

// Broker fans events out to subscribers on a dedicated goroutine.
// Events are delivered in publish order to the subscribers registered at
// publish time. A handler panic is logged and does not affect other handlers.
// When clone is set, every handler receives its own copy of the event.
type Broker[T any] struct {
	name  string
	clone func(T) T

	mu       sync.Mutex
	cond     *sync.Cond
	nextID   uint64
	subs     []subscription[T] // copy-on-write, shared with queued deliveries
	queue    []delivery[T]
	inflight bool
	closed   bool
	done     chan struct{}
}

// NewBroker creates a broker and starts its dispatch goroutine.
// clone may be nil for event types without shared references.
func NewBroker[T any](name string, clone func(T) T) *Broker[T] {
	b := &Broker[T]{
		name:  name,
		clone: clone,
		done:  make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.run()
	return b
}

// Subscribe registers handler for every event published after this call
func (b *Broker[T]) Subscribe(handler func(T)) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	subs := make([]subscription[T], len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, subscription[T]{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broker[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := make([]subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	b.subs = subs
}

// Len returns the number of active subscriptions
func (b *Broker[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish queues event for delivery and returns immediately
func (b *Broker[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		log.Warn().Str("broker", b.name).Msg("Publish on closed broker dropped")
		return
	}
	if len(b.subs) == 0 {
		return
	}
	b.queue = append(b.queue, delivery[T]{event: event, subs: b.subs})
	b.cond.Broadcast()
}

// Flush blocks until every queued event has been delivered.
// It must not be called from inside a handler.
func (b *Broker[T]) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) > 0 || b.inflight {
		b.cond.Wait()
	}
}

// Close delivers what is already queued, then stops the dispatch goroutine
func (b *Broker[T]) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.cond.Broadcast()
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Broker[T]) run() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		d := b.queue[0]
		b.queue[0] = delivery[T]{}
		b.queue = b.queue[1:]
		b.inflight = true
		b.mu.Unlock()

		for _, s := range d.subs {
			event := d.event
			if b.clone != nil {
				event = b.clone(event)
			}
			b.deliver(s, event)
		}

		b.mu.Lock()
		b.inflight = false
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

func (b *Broker[T]) deliver(s subscription[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("broker", b.name).
				Uint64("subscription", s.id).
				Interface("panic", r).
				Msg("Subscriber panicked")
		}
	}()
	s.handler(event)
}
