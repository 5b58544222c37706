package events

import (
	"context"
	"sync"
)

// Broadcaster delivers events to in-process subscribers. A subscriber whose
// buffer is full misses the event; Emit never blocks.
type Broadcaster struct {
	buffer int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is a live event feed.
type Subscription struct {
	ch      chan Event
	b       *Broadcaster
	once    sync.Once
	mu      sync.Mutex
	dropped int
}

// NewBroadcaster creates a Broadcaster whose subscribers buffer up to
// buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{buffer: buffer, subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. Call Close when done.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan Event, b.buffer), b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		s.once.Do(func() {})
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Emit delivers e to every subscriber with room in its buffer.
func (b *Broadcaster) Emit(_ context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later Emits are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()

	for s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	delete(s.b.subs, s)
	s.b.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
