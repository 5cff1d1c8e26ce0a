package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ptybridge/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	// outputWait bounds how long a test waits for shell output to show up
	outputWait = 5 * time.Second

	// outputTick is the polling interval used while waiting
	outputTick = 10 * time.Millisecond
)

// chunkCollector is the test's consumer: one goroutine selects on Ready and
// Done and dispatches, exactly like an event loop would.
type chunkCollector struct {
	mu     sync.Mutex
	chunks []Chunk

	quit     chan struct{}
	finished chan struct{}
}

func (c *chunkCollector) add(ch Chunk) {
	c.mu.Lock()
	c.chunks = append(c.chunks, ch)
	c.mu.Unlock()
}

// Chunks returns a copy of everything delivered so far.
func (c *chunkCollector) Chunks() []Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Chunk(nil), c.chunks...)
}

// Output concatenates the text of all output chunks.
func (c *chunkCollector) Output() string {
	var sb strings.Builder
	for _, ch := range c.Chunks() {
		if ch.IsOutput() {
			sb.WriteString(ch.Text)
		}
	}
	return sb.String()
}

// OfKind returns the delivered chunks of kind k.
func (c *chunkCollector) OfKind(k ChunkKind) []Chunk {
	var out []Chunk
	for _, ch := range c.Chunks() {
		if ch.Kind == k {
			out = append(out, ch)
		}
	}
	return out
}

// Halt ends the consumer loop and waits for it.
func (c *chunkCollector) Halt() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	<-c.finished
}

// TerminalSuite provides test infrastructure for Terminal tests: a debug
// logger, a terminal factory with test-friendly timeouts and a consumer loop
// per terminal. Every terminal created through the suite is stopped in
// TearDownTest.
type TerminalSuite struct {
	suite.Suite

	Logger    *logrus.Logger
	terminals []*Terminal
}

// SetupTest creates a fresh logger and skips when no POSIX shell is present.
func (s *TerminalSuite) SetupTest() {
	helper := testutils.NewTestHelper(s.T())
	helper.RequireShell()
	s.Logger = helper.Logger
	s.terminals = nil
}

// TearDownTest stops every terminal the test created, even on failure.
func (s *TerminalSuite) TearDownTest() {
	for _, term := range s.terminals {
		_ = term.Stop()
	}
	s.terminals = nil
}

// ShellOptions returns options for a quiet, predictable /bin/sh.
func (s *TerminalSuite) ShellOptions() Options {
	return Options{
		Shell:       testutils.TestShell,
		Env:         testutils.ShellEnv(),
		PollTimeout: 20 * time.Millisecond,
		GracePeriod: 500 * time.Millisecond,
		JoinTimeout: time.Second,
		Logger:      s.Logger,
	}
}

// NewTerminal creates a terminal tracked for teardown.
func (s *TerminalSuite) NewTerminal(opts Options) *Terminal {
	term := New(opts)
	s.terminals = append(s.terminals, term)
	return term
}

// StartTerminal creates and starts a terminal and attaches a consumer loop.
func (s *TerminalSuite) StartTerminal(ctx context.Context, opts Options) (*Terminal, *chunkCollector) {
	term := s.NewTerminal(opts)
	collector := s.Consume(term)
	s.Require().NoError(term.Start(ctx))
	return term, collector
}

// Consume registers a collector and runs the consumer loop until the terminal
// is done or the collector is halted.
func (s *TerminalSuite) Consume(term *Terminal) *chunkCollector {
	c := &chunkCollector{
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	term.OnChunk(c.add)

	go func() {
		defer close(c.finished)
		for {
			select {
			case <-term.Ready():
				term.Dispatch()
			case <-term.Done():
				term.Dispatch()
				return
			case <-c.quit:
				return
			}
		}
	}()
	return c
}

// WaitForOutput waits until the collected output contains want.
func (s *TerminalSuite) WaitForOutput(c *chunkCollector, want string) {
	s.Require().Eventually(func() bool {
		return strings.Contains(c.Output(), want)
	}, outputWait, outputTick, "output never contained %q; got %q", want, c.Output())
}

// WaitDone waits for the terminal to reach a terminal state.
func (s *TerminalSuite) WaitDone(term *Terminal) {
	select {
	case <-term.Done():
	case <-time.After(outputWait):
		s.Require().Failf("terminal not done", "state %s", term.State())
	}
}
