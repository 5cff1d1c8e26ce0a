// Package ptyio spawns a child process under a pseudo-terminal and moves bytes
// across the master side. It is built on github.com/creack/pty for allocation
// and golang.org/x/sys/unix for readiness polling.
//
// # Basic Usage
//
//	sess, err := ptyio.Spawn(ptyio.SpawnOptions{Path: "/bin/sh", Logger: logger})
//	if err != nil {
//	    return err // *ptyio.SpawnError, nothing left running
//	}
//	defer sess.Close()
//
//	pump := ptyio.NewPump(sess.Fd(), ptyio.PumpOptions{PollTimeout: 100 * time.Millisecond})
//	go pump.Run(running.Load, func(b []byte) { /* copy b, hand it off */ })
//
//	_, err = sess.Write([]byte("echo hi\n"))
//
// The master descriptor is shared: the pump reads it while writers call
// Session.Write. Session.Close must only run once the pump has returned.
//
// # Poll Timeout Tuning
//
// The poll timeout bounds how long the pump sleeps in poll(2) before it looks at
// its running flag again, so it is also the worst-case stop latency.
//
//	Interactive terminals:
//	  PollTimeout: 25-50ms   (snappier shutdown, ~20-40 idle wake-ups/s)
//
//	Embedded shell panel (default):
//	  PollTimeout: 100ms     (10 idle wake-ups/s)
//
//	Background batch sessions:
//	  PollTimeout: 200ms+    (minimal idle CPU)
//
// When output is flowing the timeout barely matters: poll returns as soon as the
// master is readable.
package ptyio
