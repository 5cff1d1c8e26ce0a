package bridge

import (
	"errors"
	"fmt"

	"github.com/srg/ptybridge/internal/ptyio"
)

var (
	// ErrNotRunning is wrapped by WriteError when input arrives outside the Running state.
	ErrNotRunning = errors.New("terminal is not running")

	// ErrNotRestartable is returned by Start on a Terminal that was already started or stopped.
	ErrNotRestartable = errors.New("terminal cannot be restarted")

	// ErrOutputTruncated is carried by the diagnostic chunk that replaces dropped chunks.
	ErrOutputTruncated = errors.New("output truncated")
)

// SpawnError is returned by Start when the shell could not be started.
// Nothing is left running when it is returned.
type SpawnError = ptyio.SpawnError

// ReadError is a fatal failure reading the master descriptor. It ends the pump
// and moves the Terminal to StateFailed.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("pty read failed: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// DecodeError reports bytes that could not be converted to text. The pump
// substitutes replacement characters and keeps going.
type DecodeError struct {
	Bytes int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %d bytes of output: %v", e.Bytes, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// WriteError reports input that did not reach the shell, in full or in part.
type WriteError struct {
	Written int // bytes accepted before the failure
	Len     int // bytes requested
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to shell failed (%d of %d bytes written): %v", e.Written, e.Len, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ShutdownError reports a child that had to be killed or could not be reaped.
// It is logged by Stop, never returned.
type ShutdownError struct {
	PID   int
	Stage string
	Err   error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown of pid %d (%s): %v", e.PID, e.Stage, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}
