// Package bridge runs a shell under a pseudo-terminal and exposes it to a
// consumer that lives on a single event-loop goroutine.
//
// Output is read by a background pump and handed over as an ordered stream of
// Chunks. The consumer never blocks on the shell: it selects on Ready, calls
// Dispatch to run its OnChunk callbacks on its own goroutine, and sends input
// with Submit.
//
//	term := bridge.New(bridge.Options{Logger: logger})
//	term.OnChunk(func(c bridge.Chunk) { fmt.Print(c.Text) })
//	if err := term.Start(ctx); err != nil {
//	    return err
//	}
//	defer term.Stop()
//
//	term.Submit("ls -la")
//	for {
//	    select {
//	    case <-term.Ready():
//	        term.Dispatch()
//	    case <-term.Done():
//	        term.Dispatch()
//	        return nil
//	    }
//	}
package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/ptybridge/internal/ptyio"
	"github.com/srg/ptybridge/internal/transcript"
)

// Stats is a snapshot of a Terminal's counters.
type Stats struct {
	BytesRead        uint64
	BytesWritten     uint64
	ChunksPublished  int64
	ChunksDelivered  int64
	ChunksDropped    int64
	DescriptorCloses int
}

// Terminal is one shell session. It is started once and stopped once; all
// methods are safe for concurrent use.
type Terminal struct {
	id     string
	opts   Options
	logger *logrus.Entry

	state   stateBox
	running atomic.Bool // read by the pump on every iteration
	failed  atomic.Bool // set by the pump on a fatal read error

	lifeMu   sync.Mutex // serializes Start with the first half of Stop
	session  atomic.Pointer[ptyio.Session]
	pumpDone chan struct{}

	stopOnce sync.Once
	done     chan struct{}

	disp *dispatcher
	tail *transcript.Tail

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// New creates a Terminal in StateCreated. Nothing is spawned until Start.
func New(opts Options) *Terminal {
	opts = opts.withDefaults()
	id := uuid.NewString()

	t := &Terminal{
		id:       id,
		opts:     opts,
		logger:   opts.Logger.WithField("session", id),
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
		tail:     transcript.NewTail(opts.TailBytes),
	}

	disp, err := newDispatcher(opts.QueueCap, opts.Logger)
	if err != nil {
		t.logger.WithError(err).WithField("queue_cap", opts.QueueCap).Warn("Invalid queue capacity, using default")
		disp, _ = newDispatcher(4096, opts.Logger)
	}
	t.disp = disp
	return t
}

// ID returns the session identifier used in logs.
func (t *Terminal) ID() string {
	return t.id
}

// State returns the current lifecycle state.
func (t *Terminal) State() State {
	return t.state.load()
}

// PID returns the shell's process ID, or 0 before a successful Start.
func (t *Terminal) PID() int {
	if sess := t.session.Load(); sess != nil {
		return sess.PID()
	}
	return 0
}

// ExitCode returns the shell's exit code, or -1 while it runs, if it was
// killed by a signal, or if it never started.
func (t *Terminal) ExitCode() int {
	if sess := t.session.Load(); sess != nil {
		return sess.ExitCode()
	}
	return -1
}

// OnChunk registers fn to receive every chunk, in order, from Dispatch.
// Callbacks run on the goroutine that calls Dispatch.
func (t *Terminal) OnChunk(fn func(Chunk)) {
	t.disp.onChunk(fn)
}

// Ready is signalled when chunks are waiting. One signal may cover many chunks.
func (t *Terminal) Ready() <-chan struct{} {
	return t.disp.ready()
}

// Dispatch delivers all waiting chunks to the OnChunk callbacks on the calling
// goroutine and returns how many were delivered. It never blocks on the shell.
func (t *Terminal) Dispatch() int {
	return t.disp.dispatch()
}

// Done is closed when the Terminal reaches StateStopped or StateFailed. The
// final KindExit chunk, if any, is queued before Done closes.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// Tail returns the most recent raw output, oldest byte first.
func (t *Terminal) Tail() []byte {
	return t.tail.Bytes()
}

// Stats returns a snapshot of the Terminal's counters.
func (t *Terminal) Stats() Stats {
	s := Stats{
		BytesRead:       t.bytesRead.Load(),
		BytesWritten:    t.bytesWritten.Load(),
		ChunksPublished: t.disp.published.Load(),
		ChunksDelivered: t.disp.delivered.Load(),
		ChunksDropped:   t.disp.dropped.Load(),
	}
	if sess := t.session.Load(); sess != nil {
		s.DescriptorCloses = sess.Closes()
	}
	return s
}
