package bridge

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/ptybridge/internal/groutine"
	"github.com/srg/ptybridge/internal/ptyio"
)

// runPump reads the master until Stop clears the running flag, the shell
// hangs up or a read fails. It closes pumpDone on every path. It never closes
// the master: that is Stop's job once pumpDone is closed.
func (t *Terminal) runPump(ctx context.Context, sess *ptyio.Session) {
	defer close(t.pumpDone)

	dec := ptyio.NewDecoder()
	pump := ptyio.NewPump(sess.Fd(), ptyio.PumpOptions{
		PollTimeout: t.opts.PollTimeout,
		ReadCap:     t.opts.ReadCap,
		Logger:      t.opts.Logger,
	})

	exit := pump.Run(t.running.Load, func(b []byte) {
		t.bytesRead.Add(uint64(len(b)))
		_, _ = t.tail.Write(b)

		out, err := dec.Decode(b)
		t.publishDecoded(out, append([]byte(nil), b...), err)
	})

	if out, err := dec.Flush(); out.Text != "" || err != nil {
		t.publishDecoded(out, nil, err)
	}

	log := t.logger.WithFields(logrus.Fields{
		"reason":     exit.Reason.String(),
		"bytes_read": t.bytesRead.Load(),
	})

	switch exit.Reason {
	case ptyio.ExitStopped:
		log.Debug("Pump stopped")
		return
	case ptyio.ExitHangup:
		log.Debug("Shell hung up, stopping terminal")
	case ptyio.ExitError:
		readErr := &ReadError{Err: exit.Err}
		t.failed.Store(true)
		t.disp.publish(Chunk{Kind: KindError, Text: readErr.Error(), Err: readErr})
		log.WithError(exit.Err).Error("Pump read failed, stopping terminal")
	}

	// Stop joins this goroutine, so it must run elsewhere.
	groutine.Go(ctx, "terminal-self-stop", func(context.Context) {
		_ = t.Stop()
	}, "session", t.id)
}

// publishDecoded queues the output chunk for one read, preceded by a
// diagnostic chunk when the decoder had to fall back.
func (t *Terminal) publishDecoded(out ptyio.Decoded, raw []byte, err error) {
	if err != nil {
		decErr := &DecodeError{Bytes: out.Bytes, Err: err}
		t.disp.publish(Chunk{
			Kind: KindDiagnostic,
			Text: fmt.Sprintf("invalid output replaced: %v", decErr),
			Err:  decErr,
		})
		t.logger.WithError(err).Warn("Output decode fell back to replacement")
	}
	if out.Text == "" {
		return
	}

	c := t.disp.publish(Chunk{
		Kind:     KindOutput,
		Text:     out.Text,
		Raw:      raw,
		Replaced: out.Replaced,
	})
	if t.logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		t.logger.WithFields(logrus.Fields{
			"seq":   c.Seq,
			"bytes": len(raw),
		}).Trace("Published output chunk")
	}
}
