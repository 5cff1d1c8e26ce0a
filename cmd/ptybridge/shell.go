package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ptybridge/bridge"
	"github.com/srg/ptybridge/internal/groutine"
)

const (
	// interruptWindow is how close two Ctrl+C presses must be to stop the
	// session instead of interrupting the foreground job.
	interruptWindow = time.Second

	etx = 0x03 // Ctrl+C
	eot = 0x04 // Ctrl+D
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run an interactive shell session",
	Long: `Starts a shell behind a pseudo-terminal and forwards stdin to it line by line.

Ctrl+C is forwarded to the shell's foreground job; pressing it twice within a
second stops the session. End of input (Ctrl+D) is forwarded as well, which
makes most shells exit. The command exits with the shell's exit status.`,
	Example: `  ptybridge shell
  ptybridge shell --shell /bin/bash -e PS1='> '
  echo 'uname -a' | ptybridge shell`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	addTerminalFlags(shellCmd)
}

func runShell(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	opts := cfg.TerminalOptions(logger, hostTerminalSize)
	term := bridge.New(opts)
	term.OnChunk(newChunkPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Print)

	if err := term.Start(ctx); err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer func() { _ = term.Stop() }()

	logger.WithFields(logrus.Fields{
		"pid":  term.PID(),
		"id":   term.ID(),
		"cols": opts.Cols,
		"rows": opts.Rows,
	}).Info("Shell started")

	lines := readLines(ctx, cmd.InOrStdin(), logger)
	if err := shellLoop(ctx, term, lines, signals, logger); err != nil {
		return err
	}
	return exitStatus(term)
}

// shellLoop is the session's event loop: it is the only goroutine that
// submits input or dispatches output.
func shellLoop(ctx context.Context, term *bridge.Terminal, lines <-chan string, signals <-chan os.Signal, logger *logrus.Logger) error {
	var lastInterrupt time.Time

	for {
		select {
		case <-term.Ready():
			term.Dispatch()

		case <-term.Done():
			term.Dispatch()
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return nil

		case line, ok := <-lines:
			if !ok {
				lines = nil
				if term.State() == bridge.StateRunning {
					term.SubmitRaw([]byte{eot})
				}
				continue
			}
			term.Submit(line)

		case sig := <-signals:
			if sig == os.Interrupt && time.Since(lastInterrupt) > interruptWindow {
				lastInterrupt = time.Now()
				term.SubmitRaw([]byte{etx})
				continue
			}
			logger.WithField("signal", sig).Info("Stopping shell")
			groutine.Go(ctx, "shell-stop", func(context.Context) {
				_ = term.Stop()
			}, "session", term.ID())
		}
	}
}

// readLines delivers input lines until EOF, then closes the channel. The
// reader goroutine may outlive ctx while blocked in a read.
func readLines(ctx context.Context, r io.Reader, logger *logrus.Logger) <-chan string {
	lines := make(chan string)
	groutine.Go(ctx, "stdin-reader", func(ctx context.Context) {
		defer close(lines)
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.WithError(err).Warn("Reading input failed")
				}
				return
			}
		}
	})
	return lines
}

// exitStatus maps the shell's exit code to the command result.
func exitStatus(term *bridge.Terminal) error {
	if term.State() == bridge.StateFailed {
		return fmt.Errorf("shell session failed")
	}
	if code := term.ExitCode(); code > 0 {
		return &ExitCodeError{Code: code}
	}
	return nil
}
