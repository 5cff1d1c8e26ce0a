package testutils

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// TestShell is the shell used by tests that spawn a real child process.
const TestShell = "/bin/sh"

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// RequireShell skips the test when TestShell is not executable.
func (h *TestHelper) RequireShell() {
	h.T.Helper()
	info, err := os.Stat(TestShell)
	if err != nil || info.Mode()&0o111 == 0 {
		h.T.Skipf("%s not available: %v", TestShell, err)
	}
}

// ShellEnv is a minimal, predictable environment for TestShell.
func ShellEnv() []string {
	return []string{
		"PS1=$ ",
		"TERM=dumb",
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + os.TempDir(),
	}
}

// WaitFor polls cond every tick until it holds or timeout expires.
func WaitFor(timeout, tick time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(tick)
	}
}
