package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ptybridge/pkg/config"
	"golang.org/x/term"
)

var (
	shellPath    string
	envOverrides []string
)

// addTerminalFlags registers the flags shared by every command that spawns a shell.
func addTerminalFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&shellPath, "shell", "", "Shell to run (default: config file, then $SHELL, then /bin/sh)")
	cmd.Flags().StringArrayVarP(&envOverrides, "env", "e", nil, "Environment override KEY=VALUE (repeatable)")
}

// loadSettings reads the optional config file, applies command-line overrides
// and builds the logger.
func loadSettings(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg := config.DefaultConfig()
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	if shellPath != "" {
		cfg.Shell = shellPath
	}
	if err := cfg.SetEnv(envOverrides...); err != nil {
		return nil, nil, err
	}

	logger, err := configureLogger(cmd, cfg, path != "")
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// hostTerminalSize reports the size of the terminal attached to stdout.
func hostTerminalSize() (int, int, error) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0, config.ErrNoTerminalSize
	}
	return term.GetSize(fd)
}

// isTerminal reports whether w is an *os.File attached to a terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
