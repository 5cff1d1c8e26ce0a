package bridge

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Submit sends line to the shell followed by a newline, in a single write.
// A trailing newline already present in line is not doubled.
//
// Submit never panics and never waits longer than Options.WriteTimeout. When
// the line cannot be delivered, a KindError chunk carrying a *WriteError is
// published instead; the Terminal itself is unaffected.
func (t *Terminal) Submit(line string) {
	t.write([]byte(strings.TrimSuffix(line, "\n") + "\n"))
}

// SubmitRaw sends p unchanged, e.g. "\x03" to interrupt the foreground job.
// Failures are reported as for Submit.
func (t *Terminal) SubmitRaw(p []byte) {
	if len(p) == 0 {
		return
	}
	t.write(p)
}

func (t *Terminal) write(p []byte) {
	sess := t.session.Load()
	if sess == nil || t.State() != StateRunning || !t.running.Load() {
		t.rejectWrite(&WriteError{Len: len(p), Err: fmt.Errorf("%w (state %s)", ErrNotRunning, t.State())})
		return
	}

	n, err := sess.Write(p)
	t.bytesWritten.Add(uint64(n))
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		t.rejectWrite(&WriteError{Written: n, Len: len(p), Err: err})
		return
	}

	t.logger.WithField("bytes", n).Trace("Wrote input to shell")
}

func (t *Terminal) rejectWrite(werr *WriteError) {
	t.logger.WithFields(logrus.Fields{
		"written": werr.Written,
		"len":     werr.Len,
	}).WithError(werr.Err).Debug("Input rejected")

	t.disp.publish(Chunk{Kind: KindError, Text: werr.Error(), Err: werr})
}
