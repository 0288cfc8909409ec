package events

import "sync"

// RingBuffer keeps the last size events.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	next   int
	count  int
}

func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{events: make([]Event, size)}
}

func (r *RingBuffer) Add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.count < len(r.events) {
		r.count++
	}
}

// Get returns up to n events, oldest first.
func (r *RingBuffer) Get(n int) []Event {
	return r.Filter(n, nil)
}

// Filter returns the newest n events accepted by keep, oldest first.
// A nil keep accepts everything.
func (r *RingBuffer) Filter(n int, keep func(Event) bool) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 {
		return nil
	}

	// Walk backwards from the newest entry so n bounds the work done.
	var out []Event
	size := len(r.events)
	for i := 1; i <= r.count && len(out) < n; i++ {
		e := r.events[(r.next-i+size)%size]
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
