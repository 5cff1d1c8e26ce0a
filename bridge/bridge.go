package bridge

import (
	"context"
	"fmt"
)

// ProgressCallback is called when the session phase changes.
type ProgressCallback func(phase string)

// TerminalCallback is executed with the running terminal.
type TerminalCallback[R any] func(*Terminal) (R, error)

// RunTerminal starts a terminal, executes the callback with it and stops the
// terminal when the callback returns, whatever the outcome. Chunks published
// during shutdown, such as the final KindExit chunk, are dispatched before
// RunTerminal returns, so OnChunk callbacks registered inside the callback
// still see them.
func RunTerminal[R any](
	ctx context.Context,
	opts *Options,
	progressCallback ProgressCallback,
	callback TerminalCallback[R],
) (R, error) {
	var zero R

	if opts == nil {
		return zero, fmt.Errorf("failed to run terminal: options are required")
	}
	if callback == nil {
		return zero, fmt.Errorf("failed to run terminal: callback is required")
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	term := New(*opts)

	progressCallback("Starting")
	if err := term.Start(runCtx); err != nil {
		progressCallback("Failed")
		return zero, fmt.Errorf("failed to start terminal: %w", err)
	}

	defer func() {
		progressCallback("Stopping")
		_ = term.Stop()
		term.Dispatch()
		progressCallback("Stopped")
	}()

	progressCallback("Running")
	return callback(term)
}
