package bridge

import (
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// DefaultShell is used when neither Options.Shell nor $SHELL names one.
const DefaultShell = "/bin/sh"

// Options configures a Terminal. Zero fields take the values in their
// default tags.
type Options struct {
	Shell string   // executable; "" = $SHELL, then DefaultShell
	Args  []string // extra shell arguments
	Dir   string   // working directory ("" = inherit)
	Env   []string // full environment (nil = inherit)

	Cols uint16 `default:"80"` // initial window size, fixed for the session
	Rows uint16 `default:"24"`

	PollTimeout  time.Duration `default:"100ms"` // upper bound on stop latency of the pump
	ReadCap      int           `default:"1024"`  // bytes per read
	QueueCap     uint32        `default:"4096"`  // chunks buffered for the consumer
	TailBytes    int           `default:"16384"` // raw output kept for Tail
	WriteTimeout time.Duration `default:"250ms"` // max wait for room in the pty input queue
	GracePeriod  time.Duration `default:"2s"`    // SIGHUP to SIGKILL
	JoinTimeout  time.Duration `default:"1s"`    // max wait for the pump and the reaper

	Logger *logrus.Logger
}

// discardLogger is used by Terminals created without a logger.
var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (o Options) withDefaults() Options {
	defaults.SetDefaults(&o)
	if o.Logger == nil {
		o.Logger = discardLogger
	}
	return o
}

// ResolveShell picks the shell to run: configured, then $SHELL, then DefaultShell.
func ResolveShell(configured string) string {
	if configured != "" {
		return configured
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return DefaultShell
}
