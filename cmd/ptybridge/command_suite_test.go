package main

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/ptybridge/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite provides command testing utilities. It skips when no POSIX
// shell is available and resets every package-level flag before each test.
type CommandTestSuite struct {
	suite.Suite

	noColor bool
}

// SetupSuite disables colors so transcripts can be compared as plain text.
func (s *CommandTestSuite) SetupSuite() {
	s.noColor = color.NoColor
	color.NoColor = true
}

// TearDownSuite restores the color setting.
func (s *CommandTestSuite) TearDownSuite() {
	color.NoColor = s.noColor
}

// SetupTest resets flag state left behind by earlier executions.
func (s *CommandTestSuite) SetupTest() {
	testutils.NewTestHelper(s.T()).RequireShell()

	shellPath = ""
	envOverrides = nil
	execTimeout = 0
	execTail = false

	s.Require().NoError(rootCmd.PersistentFlags().Set("log-level", ""))
	s.Require().NoError(rootCmd.PersistentFlags().Set("verbose", "false"))
	s.Require().NoError(rootCmd.PersistentFlags().Set("config", ""))
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	return s.ExecuteCommandWithInput(cmd, strings.NewReader(""), args...)
}

// ExecuteCommandWithInput runs a cobra command with stdin taken from in.
func (s *CommandTestSuite) ExecuteCommandWithInput(cmd *cobra.Command, in io.Reader, args ...string) (string, error) {
	buf := &syncBuffer{}
	cmd.SetIn(in)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	select {
	case err := <-done:
		return buf.String(), err
	case <-time.After(15 * time.Second):
		s.FailNow("command did not finish", "output so far:\n%s", buf.String())
		return "", nil
	}
}

// ShellArgs returns the flags that select a quiet test shell.
func (s *CommandTestSuite) ShellArgs() []string {
	return []string{"--shell", testutils.TestShell, "-e", "PS1=", "-e", "TERM=dumb"}
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of the chunk
// printer, the logger and the progress printer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
