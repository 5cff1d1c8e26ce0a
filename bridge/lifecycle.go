package bridge

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ptybridge/internal/groutine"
	"github.com/srg/ptybridge/internal/ptyio"
)

// Start spawns the shell and launches the output pump. It may be called once.
//
// On a spawn failure the Terminal moves to StateFailed, Done is closed and a
// *SpawnError is returned; no goroutine or process is left behind. Cancelling
// ctx later stops the Terminal as if Stop had been called.
func (t *Terminal) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	t.lifeMu.Lock()
	if !t.state.cas(StateCreated, StateStarting) {
		t.lifeMu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotRestartable, t.State())
	}

	shell := ResolveShell(t.opts.Shell)
	log := t.logger.WithField("shell", shell)
	log.Debug("Starting terminal")

	sess, err := ptyio.Spawn(ptyio.SpawnOptions{
		Path:         shell,
		Args:         t.opts.Args,
		Dir:          t.opts.Dir,
		Env:          t.opts.Env,
		Cols:         t.opts.Cols,
		Rows:         t.opts.Rows,
		WriteTimeout: t.opts.WriteTimeout,
		Logger:       t.opts.Logger,
	})
	if err != nil {
		t.state.store(StateFailed)
		t.lifeMu.Unlock()
		// closes Done; shutdown has nothing to release in StateFailed
		t.stopOnce.Do(t.shutdown)
		log.WithError(err).Error("Failed to start shell")
		return err
	}
	defer t.lifeMu.Unlock()

	t.session.Store(sess)
	t.running.Store(true)
	t.state.store(StateRunning)

	groutine.Go(ctx, "pty-pump", func(ctx context.Context) {
		t.runPump(ctx, sess)
	}, "session", t.id)

	groutine.Go(ctx, "terminal-ctx-watch", func(ctx context.Context) {
		select {
		case <-ctx.Done():
			t.logger.Debug("Context cancelled, stopping terminal")
			_ = t.Stop()
		case <-t.done:
		}
	}, "session", t.id)

	log.WithField("pid", sess.PID()).Info("Terminal started")
	return nil
}

// Stop shuts the Terminal down and returns once it is in StateStopped or
// StateFailed. The pump is joined before the master is closed, the shell gets
// SIGHUP and, after Options.GracePeriod, SIGKILL.
//
// Stop is idempotent and safe to call from any goroutine, including
// concurrently: the first call does the work, the others wait for it. It always
// returns nil; shutdown anomalies are logged as *ShutdownError.
func (t *Terminal) Stop() error {
	t.stopOnce.Do(t.shutdown)
	<-t.done
	return nil
}

// Close is Stop, for use as an io.Closer.
func (t *Terminal) Close() error {
	return t.Stop()
}

func (t *Terminal) shutdown() {
	defer close(t.done)

	t.lifeMu.Lock()
	if t.state.cas(StateCreated, StateStopped) {
		t.lifeMu.Unlock()
		t.logger.Debug("Terminal stopped before start")
		return
	}
	if !t.state.cas(StateRunning, StateStopping) {
		t.lifeMu.Unlock()
		return
	}
	t.lifeMu.Unlock()

	sess := t.session.Load()
	log := t.logger.WithField("pid", sess.PID())
	log.Debug("Stopping terminal")

	t.running.Store(false)
	joined := t.joinPump(log)

	t.terminate(sess, log)

	if !joined {
		// the shell is gone now, so a pump stuck on its output can finish
		joined = t.joinPump(log)
	}
	if joined {
		if err := sess.Close(); err != nil {
			log.WithError(err).Warn("Failed to close pty master")
		}
	} else {
		log.Error("Pump still running, leaving pty master open")
	}

	select {
	case <-sess.Exited():
	case <-time.After(t.opts.JoinTimeout):
		shutdownErr := &ShutdownError{PID: sess.PID(), Stage: "reap", Err: errors.New("child not reaped")}
		log.WithError(shutdownErr).Error("Shell was not reaped")
	}

	t.publishExit(sess)

	final := StateStopped
	if t.failed.Load() {
		final = StateFailed
	}
	t.state.store(final)

	log.WithFields(logrus.Fields{
		"exit_code": sess.ExitCode(),
		"state":     final.String(),
	}).Info("Terminal stopped")
}

// joinPump waits up to JoinTimeout for the pump goroutine to return.
func (t *Terminal) joinPump(log *logrus.Entry) bool {
	select {
	case <-t.pumpDone:
		return true
	case <-time.After(t.opts.JoinTimeout):
		log.WithField("timeout", t.opts.JoinTimeout).Warn("Pump did not exit in time")
		return false
	}
}

// terminate asks the shell to hang up and kills it if it is still around
// after the grace period.
func (t *Terminal) terminate(sess *ptyio.Session, log *logrus.Entry) {
	select {
	case <-sess.Exited():
		return
	default:
	}

	if err := sess.Signal(syscall.SIGHUP); err != nil {
		log.WithError(err).Debug("SIGHUP failed")
	}

	select {
	case <-sess.Exited():
		return
	case <-time.After(t.opts.GracePeriod):
	}

	shutdownErr := &ShutdownError{
		PID:   sess.PID(),
		Stage: "grace",
		Err:   fmt.Errorf("still running %s after SIGHUP", t.opts.GracePeriod),
	}
	log.WithError(shutdownErr).Warn("Killing shell")

	if err := sess.Signal(syscall.SIGKILL); err != nil {
		log.WithError(err).Warn("SIGKILL failed")
	}
}

// publishExit queues the final KindExit chunk. shutdown calls it exactly once.
func (t *Terminal) publishExit(sess *ptyio.Session) {
	code := sess.ExitCode()
	text := fmt.Sprintf("process exited with code %d", code)
	if code < 0 {
		text = "process terminated"
	}
	t.disp.publish(Chunk{Kind: KindExit, Text: text})
}
