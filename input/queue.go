// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"fmt"
	"sync"
)

// Queue is a bounded FIFO of input events shared by every viewer.
// Push never blocks: a full queue drops its oldest event. The notify
// channel (capacity 1) wakes the consumer.
//
// Thread-safe: all methods may be called concurrently.
type Queue struct {
	mu     sync.Mutex
	ring   []Event
	head   int
	count  int
	closed bool
	stats  QueueStats
	notify chan struct{}
}

// QueueStats counts events through a Queue.
type QueueStats struct {
	// Pushed is every event accepted by Push.
	Pushed uint64 `json:"pushed"`

	// Dropped is events evicted by overflow.
	Dropped uint64 `json:"dropped"`

	// Discarded is events removed undelivered by DiscardFrom,
	// DiscardAll or Close.
	Discarded uint64 `json:"discarded"`

	// Popped is events handed to the consumer.
	Popped uint64 `json:"popped"`

	// Queued is the current length.
	Queued int `json:"queued"`

	Capacity int `json:"capacity"`
}

// NewQueue creates a queue holding at most capacity events. capacity
// must be positive.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		panic(fmt.Sprintf("input: queue capacity must be positive, got %d", capacity))
	}
	return &Queue{
		ring:   make([]Event, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends event, evicting the oldest event if the queue is full.
// It reports false if the queue is closed, in which case the event is
// counted as discarded.
func (q *Queue) Push(event Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.stats.Discarded++
		return false
	}
	if q.count == len(q.ring) {
		q.ring[q.head] = Event{}
		q.head = (q.head + 1) % len(q.ring)
		q.count--
		q.stats.Dropped++
	}
	q.ring[(q.head+q.count)%len(q.ring)] = event
	q.count++
	q.stats.Pushed++

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the oldest event.
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return Event{}, false
	}
	event := q.ring[q.head]
	q.ring[q.head] = Event{}
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.stats.Popped++
	return event, true
}

// DiscardFrom removes every queued event from viewer, keeping the
// order of the rest, and returns how many were removed.
func (q *Queue) DiscardFrom(viewer string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := 0
	for i := 0; i < q.count; i++ {
		event := q.ring[(q.head+i)%len(q.ring)]
		if event.Viewer == viewer {
			continue
		}
		q.ring[(q.head+kept)%len(q.ring)] = event
		kept++
	}
	removed := q.count - kept
	for i := kept; i < q.count; i++ {
		q.ring[(q.head+i)%len(q.ring)] = Event{}
	}
	q.count = kept
	q.stats.Discarded += uint64(removed)
	return removed
}

// DiscardAll empties the queue and returns how many events were
// removed.
func (q *Queue) DiscardAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discardAllLocked()
}

func (q *Queue) discardAllLocked() int {
	removed := q.count
	clear(q.ring)
	q.head = 0
	q.count = 0
	q.stats.Discarded += uint64(removed)
	return removed
}

// Close discards everything queued and rejects later pushes. The
// consumer is woken so it can observe Closed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.discardAllLocked()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Notify returns the consumer wake-up channel.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := q.stats
	stats.Queued = q.count
	stats.Capacity = len(q.ring)
	return stats
}
