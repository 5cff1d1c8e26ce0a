package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/srg/ptybridge/internal/groutine"
	"golang.org/x/sys/unix"
)

const (
	// DefaultWriteTimeout bounds how long Write waits for the master to accept
	// more input when the pty input queue is full.
	DefaultWriteTimeout = 250 * time.Millisecond
)

// ErrWriteTimeout is returned when the child stops draining its input.
var ErrWriteTimeout = errors.New("pty input queue full")

// ErrHangup is returned by Write once the slave side is gone (child exited).
var ErrHangup = errors.New("pty hung up")

// SpawnError reports a failed process start. Nothing is left running when it
// is returned.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// SpawnOptions describes the child process.
type SpawnOptions struct {
	Path         string         // executable, looked up in PATH when it has no slash
	Args         []string       // arguments after argv[0]
	Dir          string         // working directory ("" = inherit)
	Env          []string       // full environment (nil = os.Environ())
	Cols         uint16         // initial window width (0 = leave kernel default)
	Rows         uint16         // initial window height (0 = leave kernel default)
	WriteTimeout time.Duration  // 0 = DefaultWriteTimeout
	Logger       *logrus.Logger // nil = discard
}

// Session owns the pty master and the child process spawned on its slave side.
type Session struct {
	logger       *logrus.Logger
	cmd          *exec.Cmd
	master       *os.File
	fd           int
	writeTimeout time.Duration

	mu     sync.RWMutex // writers hold RLock, Close holds Lock
	closed bool
	closes atomic.Int32

	exited   chan struct{}
	exitCode atomic.Int32
	waitErr  error // written by the reaper before exited is closed
}

// noopLogger is shared by sessions created without a logger.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Spawn starts opts.Path with stdin, stdout and stderr bound to a fresh pty
// slave. The slave is closed in the parent; only the master is kept. The child
// becomes a session leader with the slave as its controlling terminal.
func Spawn(opts SpawnOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	if opts.Path == "" {
		return nil, &SpawnError{Path: opts.Path, Err: errors.New("no shell configured")}
	}

	resolved, err := exec.LookPath(opts.Path)
	if err != nil {
		return nil, &SpawnError{Path: opts.Path, Err: err}
	}

	cmd := exec.Command(resolved, opts.Args...) //nolint:gosec // user-configured shell
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	var ws *pty.Winsize
	if opts.Cols > 0 && opts.Rows > 0 {
		ws = &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows}
	}

	// pty.StartWithSize allocates the pair, wires the slave to the child's stdio,
	// sets Setsid+Setctty and closes the slave in the parent.
	master, err := pty.StartWithSize(cmd, ws)
	if err != nil {
		return nil, &SpawnError{Path: resolved, Err: fmt.Errorf("failed to start under pty (check permissions and available pty devices): %w", err)}
	}

	fd := int(master.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = master.Close()
		return nil, &SpawnError{Path: resolved, Err: fmt.Errorf("failed to set pty master non-blocking: %w", err)}
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	s := &Session{
		logger:       logger,
		cmd:          cmd,
		master:       master,
		fd:           fd,
		writeTimeout: writeTimeout,
		exited:       make(chan struct{}),
	}
	s.exitCode.Store(-1)

	pid := cmd.Process.Pid
	groutine.Go(context.Background(), "pty-reaper", func(ctx context.Context) {
		s.reap()
	}, "pid", fmt.Sprint(pid))

	logger.WithFields(logrus.Fields{
		"shell": resolved,
		"pid":   pid,
	}).Debug("Spawned child under pty")

	return s, nil
}

// reap waits for the child and publishes its exit status.
func (s *Session) reap() {
	err := s.cmd.Wait()
	s.waitErr = err
	if st := s.cmd.ProcessState; st != nil {
		s.exitCode.Store(int32(st.ExitCode()))
	}
	s.logger.WithFields(logrus.Fields{
		"pid":  s.PID(),
		"code": s.exitCode.Load(),
	}).Debug("Child process reaped")
	close(s.exited)
}

// Fd returns the master descriptor for readiness polling.
func (s *Session) Fd() int {
	return s.fd
}

// PID returns the child process ID.
func (s *Session) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Exited is closed once the child has been reaped.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// ExitCode returns the child's exit code, or -1 while it runs or if it was
// killed by a signal.
func (s *Session) ExitCode() int {
	return int(s.exitCode.Load())
}

// WaitErr returns the error from cmd.Wait. Only meaningful after Exited.
func (s *Session) WaitErr() error {
	select {
	case <-s.exited:
		return s.waitErr
	default:
		return nil
	}
}

// Write sends p to the child's stdin through the master. On a full input queue
// it waits up to the write timeout for room, so it never blocks indefinitely.
// It returns os.ErrClosed once Close has run and ErrHangup when the slave side
// is gone.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, os.ErrClosed
	}

	return writeAll(s.fd, p, time.Now().Add(s.writeTimeout), unix.Write)
}

// writeAll loops write until p is written, the deadline passes on a full
// queue or the write fails. A write that makes no progress without an error
// ends the loop with io.ErrShortWrite.
func writeAll(fd int, p []byte, deadline time.Time, write func(int, []byte) (int, error)) (int, error) {
	off := 0
	for off < len(p) {
		n, err := write(fd, p[off:])
		if n > 0 {
			off += n
		}
		if err == nil {
			if n <= 0 {
				return off, io.ErrShortWrite
			}
			continue
		}

		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return off, ErrWriteTimeout
			}
			if _, perr := pollFd(fd, unix.POLLOUT, remaining); perr != nil {
				return off, perr
			}
		case errors.Is(err, unix.EIO):
			return off, ErrHangup
		default:
			return off, err
		}
	}
	return off, nil
}

// Signal delivers sig to the child's process group, falling back to the child
// itself. Signalling an already exited child is not an error.
func (s *Session) Signal(sig syscall.Signal) error {
	select {
	case <-s.exited:
		return nil
	default:
	}

	pid := s.PID()
	if pid <= 0 {
		return nil
	}

	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(pid, sig)
	}
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Close closes the master descriptor. Only the first call closes it; later
// calls return nil. The caller must ensure no pump is reading the descriptor.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.closes.Add(1)

	if err := s.master.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close pty master: %w", err)
	}
	return nil
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Closes returns how many times the master descriptor was actually closed.
func (s *Session) Closes() int {
	return int(s.closes.Load())
}
