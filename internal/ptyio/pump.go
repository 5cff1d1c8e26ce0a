package ptyio

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	// DefaultPollTimeout is how long one poll(2) call may sleep before the pump
	// re-checks its running flag.
	DefaultPollTimeout = 100 * time.Millisecond

	// DefaultReadCap is the maximum number of bytes taken from the master per read.
	DefaultReadCap = 1024
)

// ExitReason tells why Pump.Run returned.
type ExitReason int

const (
	// ExitStopped means the running flag was cleared.
	ExitStopped ExitReason = iota
	// ExitHangup means the slave side went away, normally because the child exited.
	ExitHangup
	// ExitError means poll or read failed with an unexpected error.
	ExitError
)

func (r ExitReason) String() string {
	switch r {
	case ExitStopped:
		return "stopped"
	case ExitHangup:
		return "hangup"
	case ExitError:
		return "error"
	default:
		return fmt.Sprintf("ExitReason(%d)", int(r))
	}
}

// PumpExit is the outcome of Pump.Run. Err is set only for ExitError.
type PumpExit struct {
	Reason ExitReason
	Err    error
}

// PumpOptions tunes the read loop.
type PumpOptions struct {
	PollTimeout time.Duration  // 0 = DefaultPollTimeout
	ReadCap     int            // 0 = DefaultReadCap
	Logger      *logrus.Logger // nil = discard
}

// Pump reads a descriptor until it is told to stop, the peer hangs up or an
// error occurs. A Pump is not reusable across goroutines: Run is called once.
type Pump struct {
	fd          int
	pollTimeout time.Duration
	buf         []byte
	logger      *logrus.Logger
}

// NewPump creates a pump over fd. fd is not owned by the pump and is never closed by it.
func NewPump(fd int, opts PumpOptions) *Pump {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.ReadCap <= 0 {
		opts.ReadCap = DefaultReadCap
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger
	}
	return &Pump{
		fd:          fd,
		pollTimeout: opts.PollTimeout,
		buf:         make([]byte, opts.ReadCap),
		logger:      opts.Logger,
	}
}

// Run polls the descriptor and hands every read to onData until running
// reports false. The slice passed to onData is reused by the next read, so
// onData must copy what it keeps. A panic in onData ends the loop with ExitError.
func (p *Pump) Run(running func() bool, onData func([]byte)) (exit PumpExit) {
	defer func() {
		if r := recover(); r != nil {
			exit = PumpExit{Reason: ExitError, Err: fmt.Errorf("pump panic: %v", r)}
		}
		p.logger.WithFields(logrus.Fields{
			"fd":     p.fd,
			"reason": exit.Reason.String(),
		}).Debug("Pump loop exited")
	}()

	p.logger.WithFields(logrus.Fields{
		"fd":           p.fd,
		"poll_timeout": p.pollTimeout,
		"read_cap":     len(p.buf),
	}).Debug("Pump loop started")

	for running() {
		ready, err := pollFd(p.fd, unix.POLLIN, p.pollTimeout)
		if err != nil {
			return PumpExit{Reason: ExitError, Err: err}
		}
		if !ready {
			continue
		}

		n, err := unix.Read(p.fd, p.buf)
		if n > 0 {
			onData(p.buf[:n])
		}

		switch {
		case err == nil && n == 0:
			// EOF: every writer of the slave side is gone
			return PumpExit{Reason: ExitHangup}
		case err == nil:
			continue
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			continue
		case errors.Is(err, unix.EIO):
			// Linux reports a closed slave as EIO on the master
			return PumpExit{Reason: ExitHangup}
		default:
			return PumpExit{Reason: ExitError, Err: fmt.Errorf("read: %w", err)}
		}
	}
	return PumpExit{Reason: ExitStopped}
}

// pollFd waits up to timeout for events on fd. Hang-up and error conditions
// count as ready so the following read or write surfaces them. EINTR is
// reported as not ready.
func pollFd(fd int, events int16, timeout time.Duration) (bool, error) {
	ms := int(timeout / time.Millisecond)
	if ms <= 0 && timeout > 0 {
		ms = 1
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&unix.POLLNVAL != 0 {
		return false, fmt.Errorf("poll: %w", unix.EBADF)
	}
	return true, nil
}
