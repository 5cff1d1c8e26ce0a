package transcript

import (
	"errors"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// DefaultTailSize is the number of raw output bytes retained when no size is given.
const DefaultTailSize = 16 * 1024

// Tail keeps the most recent bytes written to it, discarding the oldest ones.
// It is used to show what a session printed last, e.g. after a timeout.
// Tail is safe for concurrent use.
type Tail struct {
	mu      sync.Mutex
	buf     *ringbuffer.RingBuffer
	scratch []byte
	total   uint64
}

// NewTail creates a Tail retaining up to size bytes.
func NewTail(size int) *Tail {
	if size <= 0 {
		size = DefaultTailSize
	}
	return &Tail{
		buf:     ringbuffer.New(size),
		scratch: make([]byte, 4096),
	}
}

// Write records p, evicting the oldest bytes when the tail is full. It never
// fails and always reports len(p) so it can sit behind an io.MultiWriter.
func (t *Tail) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total += uint64(n)

	capacity := t.buf.Capacity()
	if len(p) > capacity {
		p = p[len(p)-capacity:]
	}

	if free := capacity - t.buf.Length(); len(p) > free {
		t.discard(len(p) - free)
	}

	// room was made above, so ErrIsFull cannot truncate p
	_, _ = t.buf.Write(p)
	return n, nil
}

// discard drops the oldest n bytes. Caller holds t.mu.
func (t *Tail) discard(n int) {
	for n > 0 {
		chunk := n
		if chunk > len(t.scratch) {
			chunk = len(t.scratch)
		}
		read, err := t.buf.TryRead(t.scratch[:chunk])
		if read == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
			return
		}
		n -= read
	}
}

// Bytes returns a copy of the retained bytes, oldest first.
func (t *Tail) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.buf.Length()
	if n == 0 {
		return nil
	}

	out := make([]byte, n)
	read, err := t.buf.TryRead(out)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return nil
	}
	out = out[:read]

	// put the bytes back: the snapshot must not consume the tail
	_, _ = t.buf.Write(out)
	return out
}

// String is Bytes as a string.
func (t *Tail) String() string {
	return string(t.Bytes())
}

// Len returns the number of retained bytes.
func (t *Tail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Length()
}

// Total returns how many bytes were ever written, including evicted ones.
func (t *Tail) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
