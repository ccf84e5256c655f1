// Package feed serializes batches of log lines from any number of producers
// into the single goroutine that drives a follower.
package feed

import (
	"sync"

	"github.com/roach88/lavalog/internal/logline"
)

// Queue is a thread-safe FIFO of log line batches.
//
// The queue is unbounded so a producer reading a burst of output (a kernel
// panic, a test dumping its log) never blocks on a slow consumer.
//
// A channel is used for signaling to allow context-aware waiting in
// Pump.Run.
type Queue struct {
	mu      sync.Mutex
	batches [][]logline.LogLine
	closed  bool
	signal  chan struct{} // Signals batch availability (buffered, size 1)
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		batches: make([][]logline.LogLine, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a batch to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *Queue) Enqueue(batch []logline.LogLine) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.batches = append(q.batches, batch)

	// Non-blocking: the buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front batch without blocking.
// Returns (nil, false) if the queue is empty.
func (q *Queue) TryDequeue() ([]logline.LogLine, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.batches) == 0 {
		return nil, false
	}

	batch := q.batches[0]

	// Release the slot so the batch can be collected once processed.
	q.batches[0] = nil

	if len(q.batches) == 1 {
		q.batches = q.batches[:0]
	} else {
		q.batches = q.batches[1:]
	}

	return batch, true
}

// Wait returns a channel that signals when batches may be available.
// The channel is closed by Close, so a closed queue is always ready.
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// Close signals that no more batches will be enqueued.
// Batches already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Drained reports whether the queue is closed and empty.
func (q *Queue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.batches) == 0
}
