package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ptybridge/internal/dispatch"
)

// dispatcher carries chunks from the pump goroutine to the consumer goroutine.
//
// Producers never wait: publish assigns the next Seq and pushes onto a
// drop-oldest ring. The consumer drains on its own goroutine and sees chunks
// in Seq order. A hole in the sequence means the ring overflowed; the consumer
// is told with a single diagnostic chunk in place of the missing ones.
type dispatcher struct {
	logger *logrus.Logger

	mu    sync.Mutex // orders Seq assignment with the push
	seq   uint64
	queue *dispatch.Queue[Chunk]

	cbMu      sync.RWMutex
	callbacks []func(Chunk)

	draining      atomic.Bool
	lastDelivered uint64 // consumer side only

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

func newDispatcher(capacity uint32, logger *logrus.Logger) (*dispatcher, error) {
	q, err := dispatch.New[Chunk](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk queue: %w", err)
	}
	return &dispatcher{logger: logger, queue: q}, nil
}

// publish stamps c with the next Seq and the current time and queues it.
// It returns the stamped chunk.
func (d *dispatcher) publish(c Chunk) Chunk {
	d.mu.Lock()
	d.seq++
	c.Seq = d.seq
	c.Time = time.Now()
	_, err := d.queue.Push(c)
	d.mu.Unlock()

	if err != nil {
		// the chunk is lost; the consumer will see the Seq gap as truncation
		d.logger.WithError(err).WithField("seq", c.Seq).Warn("Failed to queue chunk")
		return c
	}
	d.published.Add(1)
	return c
}

func (d *dispatcher) onChunk(fn func(Chunk)) {
	if fn == nil {
		return
	}
	d.cbMu.Lock()
	d.callbacks = append(d.callbacks, fn)
	d.cbMu.Unlock()
}

func (d *dispatcher) ready() <-chan struct{} {
	return d.queue.Ready()
}

// dispatch delivers every queued chunk to the callbacks on the calling
// goroutine and returns how many chunks were delivered, markers included.
// A nested call from inside a callback returns 0 immediately.
func (d *dispatcher) dispatch() int {
	if !d.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer d.draining.Store(false)

	d.cbMu.RLock()
	callbacks := append([]func(Chunk){}, d.callbacks...)
	d.cbMu.RUnlock()

	delivered := 0
	deliver := func(c Chunk) {
		for _, fn := range callbacks {
			fn(c)
		}
		delivered++
		d.delivered.Add(1)
	}

	_, err := d.queue.Drain(func(c Chunk) {
		if c.Seq > d.lastDelivered+1 {
			gap := c.Seq - d.lastDelivered - 1
			d.dropped.Add(int64(gap))
			d.logger.WithFields(logrus.Fields{
				"dropped": gap,
				"seq":     c.Seq,
			}).Warn("Consumer fell behind, output truncated")
			deliver(Chunk{
				Seq:  c.Seq - 1,
				Kind: KindDiagnostic,
				Text: fmt.Sprintf("output truncated: %d chunks dropped", gap),
				Err:  fmt.Errorf("%w: %d chunks dropped", ErrOutputTruncated, gap),
				Time: c.Time,
			})
		}
		d.lastDelivered = c.Seq
		deliver(c)
	})
	if err != nil {
		d.logger.WithError(err).Warn("Chunk queue drain failed")
	}
	return delivered
}
