// Package queue provides the bounded FIFO event buffer between producers
// and the dispatch worker pool.
//
// Producers never block: Post rejects with a resource-exhausted error
// when the buffer is full. Each successful post also sends one wake
// signal, but signals are a lossy counting hint, not per-item tokens — a
// worker that wakes may find fewer items than signals, or drain a batch
// that satisfies several signals at once, and must tolerate waking to an
// empty queue.
package queue

import (
	"sync"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

// DefaultCapacity is the event buffer depth used when none is configured.
const DefaultCapacity = 64

// Queue is a fixed-capacity FIFO ring of event records. All methods are
// safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	ring  []wasmhost.Event
	head  int
	count int

	wake chan struct{}
}

// New creates a queue holding up to capacity events. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		ring: make([]wasmhost.Event, capacity),
		wake: make(chan struct{}, capacity),
	}
}

// Post appends e and signals the worker pool. When the queue is full the
// event is rejected, the queue is left unchanged, and the caller gets a
// resource-exhausted error; Post never blocks.
func (q *Queue) Post(e wasmhost.Event) error {
	q.mu.Lock()
	if q.count == len(q.ring) {
		q.mu.Unlock()
		return errors.QueueFull(len(q.ring))
	}
	q.ring[(q.head+q.count)%len(q.ring)] = e
	q.count++
	q.mu.Unlock()

	// Lossy wake: if the signal buffer is full the pending signals
	// already cover this item.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Wake returns the channel workers block on while idle. One receive may
// stand for any number of queued events, including zero.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// DrainBatch moves up to len(buf) oldest events into buf in FIFO order
// and reports how many were moved. Fewer than requested means the queue
// held fewer; zero means it was empty.
func (q *Queue) DrainBatch(buf []wasmhost.Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(buf)
	if q.count < n {
		n = q.count
	}
	for i := 0; i < n; i++ {
		buf[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.head = (q.head + n) % len(q.ring)
	q.count -= n
	return n
}

// TakeOwned removes and returns the oldest event owned by the given
// module, leaving the relative order of all other events intact. The
// second result is false when no owned event is queued.
func (q *Queue) TakeOwned(owner wasmhost.Handle) (wasmhost.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.ring)
		if q.ring[idx].Owner != owner {
			continue
		}
		e := q.ring[idx]
		for j := i; j < q.count-1; j++ {
			q.ring[(q.head+j)%len(q.ring)] = q.ring[(q.head+j+1)%len(q.ring)]
		}
		q.count--
		return e, true
	}
	return wasmhost.Event{}, false
}

// Len reports current occupancy.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap reports the configured capacity.
func (q *Queue) Cap() int {
	return len(q.ring)
}

// Reset drops every queued event. Shutdown uses it to discard events that
// will never be dispatched.
func (q *Queue) Reset() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := q.count
	q.head = 0
	q.count = 0
	return dropped
}
