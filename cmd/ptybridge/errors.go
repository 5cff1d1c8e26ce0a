package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/srg/ptybridge/bridge"
)

// Command-level errors
var (
	// ErrTimeout indicates exec gave up waiting for the shell to finish.
	ErrTimeout = errors.New("timed out waiting for the shell to exit")

	// ErrShellTerminated indicates the shell was killed by a signal instead of exiting.
	ErrShellTerminated = errors.New("shell terminated by signal")
)

// ExitCodeError carries the shell's non-zero exit status out of a command so
// that main can exit with it.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("shell exited with code %d", e.Code)
}

// FormatUserError turns internal error chains into a single readable line.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var spawnErr *bridge.SpawnError
	if errors.As(err, &spawnErr) {
		switch {
		case errors.Is(spawnErr.Err, os.ErrNotExist), errors.Is(spawnErr.Err, exec.ErrNotFound):
			return fmt.Sprintf("shell %q not found; set --shell, $SHELL or \"shell\" in the config file", spawnErr.Path)
		case errors.Is(spawnErr.Err, os.ErrPermission):
			return fmt.Sprintf("shell %q is not executable", spawnErr.Path)
		default:
			return fmt.Sprintf("cannot start shell %q: %v", spawnErr.Path, spawnErr.Err)
		}
	}

	return err.Error()
}
