// Package bus provides the in-memory typed event bus that decouples ingress
// from orchestration and orchestration from egress.
package bus

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Bus is a typed publish/subscribe hub. Publishing never blocks the caller:
// each subscriber owns an unbounded FIFO drained by its own goroutine, so one
// slow or panicking subscriber cannot stall delivery to the others.
//
// The bus does not bound queue depth. Callers must not publish unboundedly
// faster than handlers can drain.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type][]*subscriber
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[reflect.Type][]*subscriber)}
}

// Subscribe registers fn for every published event of type T. Events are
// delivered to this subscriber in publish order; no ordering is guaranteed
// across subscribers or across event types.
func Subscribe[T any](b *Bus, fn func(T)) {
	s := newSubscriber(func(ev any) { fn(ev.(T)) })

	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.subs[t] = append(b.subs[t], s)
	b.mu.Unlock()

	go s.loop()
}

// Publish delivers ev to every subscriber of type T, fire-and-forget.
func Publish[T any](b *Bus, ev T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.RLock()
	subs := b.subs[t]
	b.mu.RUnlock()

	for _, s := range subs {
		s.push(ev)
	}
}

// Close stops all subscriber goroutines after their queues drain.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			s.close()
		}
	}
}

type subscriber struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []any
	closed  bool
	deliver func(any)
}

func newSubscriber(deliver func(any)) *subscriber {
	s := &subscriber{deliver: deliver}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) push(ev any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber) loop() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.dispatch(ev)
	}
}

// dispatch isolates one delivery so a panicking handler never takes down the
// drain loop or the publisher.
func (s *subscriber) dispatch(ev any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus: subscriber panic",
				"event_type", fmt.Sprintf("%T", ev),
				"panic", r,
			)
		}
	}()
	s.deliver(ev)
}
