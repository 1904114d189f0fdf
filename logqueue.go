package boxmgr

import (
	"context"
	"sync"
)

// LogQueue keeps the last N published entries and fans every new entry
// out to live listeners. A listener first replays the backlog captured at
// subscription time, then follows live entries. Delivery to a listener
// that falls more than N entries behind is best effort: overflowing
// entries are dropped for that listener only.
type LogQueue[T any] struct {
	mu        sync.Mutex
	ring      []T
	head      int
	size      int
	listeners map[*Listener[T]]struct{}
}

// NewLogQueue creates a LogQueue retaining capacity entries.
// A non-positive capacity selects DefaultLogCapacity.
func NewLogQueue[T any](capacity int) *LogQueue[T] {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogQueue[T]{
		ring:      make([]T, capacity),
		listeners: make(map[*Listener[T]]struct{}),
	}
}

// Capacity returns the number of entries retained for new listeners
func (q *LogQueue[T]) Capacity() int {
	return len(q.ring)
}

// Push appends v, evicting the oldest entry when the backlog is full,
// and offers v to every listener without blocking.
func (q *LogQueue[T]) Push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.ring) {
		q.ring[q.head] = v
		q.head = (q.head + 1) % len(q.ring)
	} else {
		q.ring[(q.head+q.size)%len(q.ring)] = v
		q.size++
	}

	for l := range q.listeners {
		select {
		case l.live <- v:
		default:
		}
	}
}

// Backlog returns a copy of the retained entries, oldest first
func (q *LogQueue[T]) Backlog() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backlogLocked()
}

func (q *LogQueue[T]) backlogLocked() []T {
	out := make([]T, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	return out
}

// Subscribe registers a listener. The backlog snapshot and the live
// registration happen atomically, so no entry is missed or repeated
// between the two.
func (q *LogQueue[T]) Subscribe() *Listener[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	l := &Listener[T]{
		queue:   q,
		backlog: q.backlogLocked(),
		live:    make(chan T, len(q.ring)),
	}
	q.listeners[l] = struct{}{}
	return l
}

func (q *LogQueue[T]) remove(l *Listener[T]) {
	q.mu.Lock()
	delete(q.listeners, l)
	q.mu.Unlock()
}

// Listener is one subscription to a LogQueue
type Listener[T any] struct {
	queue   *LogQueue[T]
	backlog []T
	live    chan T
	once    sync.Once
}

// Listen drives the subscription: it hands the backlog and then every live
// entry to sink, in order, until sink returns an error or ctx is done.
// The listener is closed when Listen returns.
func (l *Listener[T]) Listen(ctx context.Context, sink func(T) error) {
	defer l.Close()

	for _, v := range l.backlog {
		if ctx.Err() != nil {
			return
		}
		if err := sink(v); err != nil {
			return
		}
	}
	l.backlog = nil

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-l.live:
			if err := sink(v); err != nil {
				return
			}
		}
	}
}

// Close unregisters the listener; it is safe to call more than once
func (l *Listener[T]) Close() {
	l.once.Do(func() {
		l.queue.remove(l)
	})
}
