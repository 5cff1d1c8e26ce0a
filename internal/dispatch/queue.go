// Package dispatch provides a bounded, order-preserving hand-off queue between a
// producer goroutine and a consumer that drains it from its own event loop.
//
// The queue never blocks the producer: when it is full the oldest element is
// overwritten and counted. The consumer is woken through a 1-buffered ready
// channel, so a burst of pushes collapses into a single wake-up.
//
//	q, _ := dispatch.New[Chunk](4096)
//
//	// producer goroutine
//	q.Push(chunk)
//
//	// consumer loop
//	for {
//	    select {
//	    case <-q.Ready():
//	        q.Drain(func(c Chunk) { render(c) })
//	    case <-ctx.Done():
//	        return
//	    }
//	}
package dispatch

import (
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// MaxCapacity guards against accidental misconfiguration.
const MaxCapacity uint32 = 1024 * 1024

// Metrics is a snapshot of queue counters.
type Metrics struct {
	Pushed      int64 // elements accepted by Push
	Drained     int64 // elements handed to a Drain callback
	Overwritten int64 // elements lost because the queue was full
	Errors      int64 // unexpected ring buffer errors
}

// Queue is a drop-oldest ring shared by one or more producers and one consumer.
// All methods are safe for concurrent use.
type Queue[T any] struct {
	buf   mpmc.RichOverlappedRingBuffer[T]
	ready chan struct{}

	pushed      atomic.Int64
	drained     atomic.Int64
	overwritten atomic.Int64
	errors      atomic.Int64
}

// New creates a queue holding at least capacity elements. The ring may round the
// capacity up to a power of two.
func New[T any](capacity uint32) (*Queue[T], error) {
	if capacity == 0 {
		return nil, fmt.Errorf("queue capacity must be > 0")
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("queue capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}

	return &Queue[T]{
		buf:   mpmc.NewOverlappedRingBuffer[T](capacity),
		ready: make(chan struct{}, 1),
	}, nil
}

// Push enqueues v without blocking and wakes the consumer. It reports how many
// older elements were overwritten to make room.
func (q *Queue[T]) Push(v T) (uint32, error) {
	overwrites, err := q.buf.EnqueueM(v)
	if err != nil {
		q.errors.Add(1)
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	q.pushed.Add(1)
	if overwrites > 0 {
		q.overwritten.Add(int64(overwrites))
	}

	select {
	case q.ready <- struct{}{}:
	default:
		// wake-up already pending
	}
	return overwrites, nil
}

// Ready is signalled after every Push. A single receive may stand for many
// pushes, so the consumer must Drain until empty.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain hands every queued element to fn, oldest first, on the caller's
// goroutine. It returns the number of elements delivered.
func (q *Queue[T]) Drain(fn func(T)) (int, error) {
	n := 0
	for !q.buf.IsEmpty() {
		v, err := q.buf.Dequeue()
		if err != nil {
			// A concurrent overwrite can empty the slot between IsEmpty and Dequeue.
			if q.buf.IsEmpty() {
				break
			}
			q.errors.Add(1)
			return n, fmt.Errorf("dequeue: %w", err)
		}
		q.drained.Add(1)
		n++
		fn(v)
	}
	return n, nil
}

// Cap returns the effective ring capacity.
func (q *Queue[T]) Cap() uint32 {
	return q.buf.Cap()
}

// Metrics returns a snapshot of the counters.
func (q *Queue[T]) Metrics() Metrics {
	return Metrics{
		Pushed:      q.pushed.Load(),
		Drained:     q.drained.Load(),
		Overwritten: q.overwritten.Load(),
		Errors:      q.errors.Load(),
	}
}
