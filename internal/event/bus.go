package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultBuffer = 16

// Bus delivers events to every subscriber without ever blocking the
// publisher. A subscriber that falls behind loses its oldest pending event.
type Bus[T any] struct {
	mu   sync.Mutex
	seq  uint64
	subs map[string]*Subscription[T]
}

// Subscription is one observer's view of a Bus.
type Subscription[T any] struct {
	ID      string
	ch      chan Event[T]
	dropped uint64
	bus     *Bus[T]
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]*Subscription[T])}
}

// Subscribe registers a new observer with the given channel buffer.
func (b *Bus[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription[T]{
		ID:  uuid.NewString(),
		ch:  make(chan Event[T], buffer),
		bus: b,
	}

	b.mu.Lock()
	b.subs[s.ID] = s
	b.mu.Unlock()
	return s
}

// Publish stamps and delivers an event to all subscribers.
func (b *Bus[T]) Publish(typ Type, state T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev := Event[T]{Seq: b.seq, Ts: time.Now(), Type: typ, State: state}

	for _, s := range b.subs {
		select {
		case s.ch <- ev:
			continue
		default:
		}
		// Full: make room by dropping the oldest.
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped++
		}
		slog.Debug("Subscriber lagging", slog.String("id", s.ID), slog.Uint64("dropped", s.dropped))
	}
}

// Len returns the number of active subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// C returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription[T]) C() <-chan Event[T] { return s.ch }

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription[T]) Dropped() uint64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.dropped
}

// Unsubscribe removes the subscription and closes its channel. Safe to call twice.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.ID]; !ok {
		return
	}
	delete(s.bus.subs, s.ID)
	close(s.ch)
}
