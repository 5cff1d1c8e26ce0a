package ptyio

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestSpawn_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "empty path", path: ""},
		{name: "missing absolute path", path: "/definitely/not/a/shell"},
		{name: "missing from PATH", path: "no-such-shell-binary-xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := Spawn(SpawnOptions{Path: tt.path})
			require.Error(t, err)
			assert.Nil(t, sess)

			var spawnErr *SpawnError
			require.True(t, errors.As(err, &spawnErr))
			assert.Equal(t, tt.path, spawnErr.Path)
		})
	}
}

func TestSession_EchoRoundTrip(t *testing.T) {
	requireShell(t)

	sess, err := Spawn(SpawnOptions{Path: "/bin/sh", Env: []string{"PS1=$ ", "TERM=dumb"}, Cols: 80, Rows: 24})
	require.NoError(t, err)
	assert.Greater(t, sess.PID(), 0)

	var (
		mu  sync.Mutex
		out strings.Builder
	)
	var running atomic.Bool
	running.Store(true)

	pump := NewPump(sess.Fd(), PumpOptions{PollTimeout: 20 * time.Millisecond})
	done := make(chan PumpExit, 1)
	go func() {
		done <- pump.Run(running.Load, func(b []byte) {
			mu.Lock()
			out.Write(b)
			mu.Unlock()
		})
	}()

	_, err = sess.Write([]byte("echo marker$((100+23))\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(out.String(), "marker123")
	}, 5*time.Second, 10*time.Millisecond)

	_, err = sess.Write([]byte("exit 3\n"))
	require.NoError(t, err)

	select {
	case exit := <-done:
		assert.Equal(t, ExitHangup, exit.Reason)
	case <-time.After(5 * time.Second):
		running.Store(false)
		require.Fail(t, "pump did not see the child exit")
	}

	select {
	case <-sess.Exited():
	case <-time.After(5 * time.Second):
		require.Fail(t, "child was not reaped")
	}
	assert.Equal(t, 3, sess.ExitCode())
	assert.NoError(t, sess.Signal(syscall.SIGHUP), "signalling an exited child is not an error")

	require.NoError(t, sess.Close())
}

func TestSession_CloseOnce(t *testing.T) {
	requireShell(t)

	sess, err := Spawn(SpawnOptions{Path: "/bin/sh"})
	require.NoError(t, err)
	defer func() { _ = sess.Signal(syscall.SIGKILL) }()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sess.Close())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sess.Closes())
	assert.True(t, sess.Closed())

	_, err = sess.Write([]byte("echo late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestSession_KillIsReaped(t *testing.T) {
	requireShell(t)

	sess, err := Spawn(SpawnOptions{Path: "/bin/sh"})
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, -1, sess.ExitCode())
	require.NoError(t, sess.Signal(syscall.SIGKILL))

	select {
	case <-sess.Exited():
	case <-time.After(5 * time.Second):
		require.Fail(t, "killed child was not reaped")
	}
	assert.Equal(t, -1, sess.ExitCode(), "signal deaths report -1")
	assert.Error(t, sess.WaitErr())
}

func TestWriteAll(t *testing.T) {
	type result struct {
		n   int
		err error
	}
	// scripted returns one result per call; the last one repeats
	scripted := func(results ...result) (func(int, []byte) (int, error), *int) {
		calls := 0
		return func(_ int, p []byte) (int, error) {
			r := results[min(calls, len(results)-1)]
			calls++
			return min(r.n, len(p)), r.err
		}, &calls
	}

	tests := []struct {
		name      string
		results   []result
		wantN     int
		wantErr   error
		wantCalls int
	}{
		{name: "single write", results: []result{{n: 5}}, wantN: 5, wantCalls: 1},
		{name: "partial writes", results: []result{{n: 2}, {n: 3}}, wantN: 5, wantCalls: 2},
		{name: "interrupted", results: []result{{err: unix.EINTR}, {n: 5}}, wantN: 5, wantCalls: 2},
		{name: "no progress", results: []result{{n: 2}, {n: 0}}, wantN: 2, wantErr: io.ErrShortWrite, wantCalls: 2},
		{name: "hangup", results: []result{{n: 1}, {err: unix.EIO}}, wantN: 1, wantErr: ErrHangup, wantCalls: 2},
		{name: "other error", results: []result{{err: unix.EBADF}}, wantN: 0, wantErr: unix.EBADF, wantCalls: 1},
		{name: "full queue past deadline", results: []result{{err: unix.EAGAIN}}, wantN: 0, wantErr: ErrWriteTimeout, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write, calls := scripted(tt.results...)

			n, err := writeAll(-1, []byte("hello"), time.Now().Add(-time.Second), write)

			assert.Equal(t, tt.wantN, n)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}
