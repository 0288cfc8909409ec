package events

import (
	"sync"
	"sync/atomic"
)

// subscriberQueue is the number of events a slow subscriber may lag behind
// before further events to it are dropped.
const subscriberQueue = 256

// Subscriber is a function that receives events.
type Subscriber func(Event)

// subscription delivers events to one handler, in publication order, from
// its own goroutine.
type subscription struct {
	types   map[EventType]struct{}
	handler Subscriber
	queue   chan Event
}

func (s *subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

func (s *subscription) run() {
	for e := range s.queue {
		s.handler(e)
	}
}

// Bus fans events out to subscribers and keeps the most recent ones for
// history queries. Publishing never blocks the caller.
type Bus struct {
	mu       sync.RWMutex
	subs     map[int]*subscription
	nextID   int
	closed   bool
	incoming chan Event
	done     chan struct{}

	history *RingBuffer
	dropped atomic.Uint64
}

// NewBus creates a bus whose publish queue and history hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	b := &Bus{
		subs:     make(map[int]*subscription),
		incoming: make(chan Event, bufferSize),
		done:     make(chan struct{}),
		history:  NewRingBuffer(bufferSize),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case e := <-b.incoming:
			b.history.Add(e)
			b.fanOut(e)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) fanOut(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.queue <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Publish queues an event. When the queue is full the event is dropped.
// Publishing on a nil or closed bus is a no-op.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.incoming <- e:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many deliveries were lost to full queues.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers handler for the given event types, or for all events
// when none are given. The returned function unsubscribes; events already
// queued for the handler are still delivered.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	sub := &subscription{
		handler: handler,
		queue:   make(chan Event, subscriberQueue),
	}
	if len(eventTypes) > 0 {
		sub.types = make(map[EventType]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.queue)
			}
		})
	}
}

// SubscribeChan returns a channel that receives events. Events are dropped
// when the channel is full. The returned function unsubscribes and closes
// the channel.
func (b *Bus) SubscribeChan(bufSize int, eventTypes ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	var mu sync.Mutex
	closed := false

	unsubscribe := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	}, eventTypes...)

	return ch, func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// History returns up to limit recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.history.Get(limit)
}

// HistoryFor returns up to limit recent events of one session, oldest first.
func (b *Bus) HistoryFor(sessionID string, limit int) []Event {
	return b.history.Filter(limit, func(e Event) bool { return e.SessionID == sessionID })
}

// Close stops dispatching and ends every subscription. Events still queued
// for publication are discarded. The publish queue is never closed, so a
// racing Publish cannot panic.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.queue)
	}
}
