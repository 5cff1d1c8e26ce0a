package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ptybridge/bridge"
)

var (
	execTimeout time.Duration
	execTail    bool
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- LINE...",
	Short: "Submit command lines to a shell and print the transcript",
	Long: `Starts a shell behind a pseudo-terminal, submits every LINE as its own input
line followed by "exit", and prints the shell's output until it exits.

The transcript includes whatever the terminal echoes, prompts included. The
command exits with the shell's exit status, which for most shells is the
status of the last LINE.`,
	Example: `  ptybridge exec -- 'cd /tmp' 'ls -la'
  ptybridge exec --timeout 30s --tail -- 'make test' > build.log`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	addTerminalFlags(execCmd)
	execCmd.Flags().DurationVarP(&execTimeout, "timeout", "t", 0, "Stop the shell if it has not exited after this long (0 = no limit)")
	execCmd.Flags().BoolVar(&execTail, "tail", false, "On timeout, print the last bytes of raw output to stderr")
}

func runExec(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := cfg.TerminalOptions(logger, nil)
	printer := newChunkPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	var progress bridge.ProgressCallback
	if isTerminal(cmd.ErrOrStderr()) && !isTerminal(cmd.OutOrStdout()) {
		p := NewCountdownProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("exec %s", summarize(args)), "Starting", execTimeout, "Stopped", "Failed")
		p.Start()
		defer p.Stop()
		progress = p.Callback()
	}

	code, err := bridge.RunTerminal(ctx, &opts, progress, func(term *bridge.Terminal) (int, error) {
		term.OnChunk(printer.Print)
		logger.WithFields(logrus.Fields{
			"pid":   term.PID(),
			"lines": len(args),
		}).Debug("Submitting lines")

		for _, line := range args {
			term.Submit(line)
		}
		term.Submit("exit")
		return awaitExit(ctx, term, execTimeout, func() {
			if execTail {
				tail := term.Tail()
				fmt.Fprintf(cmd.ErrOrStderr(), "\n--- last %d bytes of output ---\n%s\n", len(tail), tail)
			}
		})
	})
	if err != nil {
		return err
	}
	switch {
	case code < 0:
		return ErrShellTerminated
	case code > 0:
		return &ExitCodeError{Code: code}
	}
	return nil
}

// awaitExit dispatches output until the shell exits, ctx is cancelled or
// timeout elapses. onTimeout runs before the timeout error is returned.
func awaitExit(ctx context.Context, term *bridge.Terminal, timeout time.Duration, onTimeout func()) (int, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-term.Ready():
			term.Dispatch()
		case <-term.Done():
			term.Dispatch()
			if err := ctx.Err(); err != nil {
				return -1, err
			}
			return term.ExitCode(), nil
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-expired:
			term.Dispatch()
			if onTimeout != nil {
				onTimeout()
			}
			return -1, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
	}
}

// summarize shortens the submitted lines for the progress line.
func summarize(lines []string) string {
	s := []rune(strings.Join(lines, "; "))
	if len(s) > 40 {
		return string(s[:37]) + "..."
	}
	return string(s)
}
