package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/ptybridge/bridge"
	"github.com/srg/ptybridge/internal/dispatch"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Zero fields take the values in their
// default tags; a YAML file only needs the keys it changes.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	Shell string                                `yaml:"shell"` // "" = $SHELL, then /bin/sh
	Args  []string                              `yaml:"args"`
	Dir   string                                `yaml:"dir"`
	Term  string                                `yaml:"term" default:"dumb"` // exported as TERM; nothing interprets escape sequences
	Env   *orderedmap.OrderedMap[string, string] `yaml:"env"`                 // applied over the inherited environment, in order

	Cols uint16 `yaml:"cols"` // 0 = size of the controlling terminal, else 80
	Rows uint16 `yaml:"rows"` // 0 = size of the controlling terminal, else 24

	PollTimeout  time.Duration `yaml:"poll_timeout" default:"100ms"`
	ReadCap      int           `yaml:"read_cap" default:"1024"`
	QueueCap     uint32        `yaml:"queue_cap" default:"4096"`
	TailBytes    int           `yaml:"tail_bytes" default:"16384"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"250ms"`
	GracePeriod  time.Duration `yaml:"grace_period" default:"2s"`
	JoinTimeout  time.Duration `yaml:"join_timeout" default:"1s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Env = orderedmap.New[string, string]()
	return cfg
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Env == nil {
		// an explicit "env:" with no entries decodes to nil
		cfg.Env = orderedmap.New[string, string]()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"poll_timeout", c.PollTimeout},
		{"write_timeout", c.WriteTimeout},
		{"grace_period", c.GracePeriod},
		{"join_timeout", c.JoinTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if c.ReadCap <= 0 {
		return fmt.Errorf("read_cap must be positive, got %d", c.ReadCap)
	}
	if c.QueueCap == 0 || c.QueueCap > dispatch.MaxCapacity {
		return fmt.Errorf("queue_cap must be in 1..%d, got %d", dispatch.MaxCapacity, c.QueueCap)
	}
	if c.TailBytes < 0 {
		return fmt.Errorf("tail_bytes must not be negative, got %d", c.TailBytes)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// SetEnv parses KEY=VALUE pairs and records them as environment overrides.
// A later pair for the same key replaces the earlier value.
func (c *Config) SetEnv(pairs ...string) error {
	if c.Env == nil {
		c.Env = orderedmap.New[string, string]()
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid environment override %q: want KEY=VALUE", pair)
		}
		c.Env.Set(key, value)
	}
	return nil
}

// Environment builds the shell's environment: base, then TERM, then the
// configured overrides.
func (c *Config) Environment(base []string) []string {
	overrides := orderedmap.New[string, string]()
	if c.Term != "" {
		overrides.Set("TERM", c.Term)
	}
	if c.Env != nil {
		for pair := c.Env.Oldest(); pair != nil; pair = pair.Next() {
			overrides.Set(pair.Key, pair.Value)
		}
	}
	return MergeEnv(base, overrides)
}

// MergeEnv applies overrides to a KEY=VALUE list. Existing keys keep their
// position and take the new value; new keys are appended in override order.
// Entries of base without '=' are dropped.
func MergeEnv(base []string, overrides *orderedmap.OrderedMap[string, string]) []string {
	merged := orderedmap.New[string, string](len(base))
	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		merged.Set(key, value)
	}
	if overrides != nil {
		for pair := overrides.Oldest(); pair != nil; pair = pair.Next() {
			merged.Set(pair.Key, pair.Value)
		}
	}

	env := make([]string, 0, merged.Len())
	for pair := merged.Oldest(); pair != nil; pair = pair.Next() {
		env = append(env, pair.Key+"="+pair.Value)
	}
	return env
}

// ErrNoTerminalSize is returned by a SizeFunc when the host has no terminal.
var ErrNoTerminalSize = errors.New("no terminal size available")

// SizeFunc reports the host terminal size as columns and rows.
type SizeFunc func() (cols, rows int, err error)

// TerminalOptions converts the configuration into bridge options. size is
// consulted only when Cols or Rows are unset; nil means 80x24.
func (c *Config) TerminalOptions(logger *logrus.Logger, size SizeFunc) bridge.Options {
	cols, rows := c.Cols, c.Rows
	if cols == 0 || rows == 0 {
		cols, rows = 80, 24
		if size != nil {
			if w, h, err := size(); err == nil && w > 0 && h > 0 {
				cols, rows = uint16(w), uint16(h)
			}
		}
		if c.Cols != 0 {
			cols = c.Cols
		}
		if c.Rows != 0 {
			rows = c.Rows
		}
	}

	return bridge.Options{
		Shell:        c.Shell,
		Args:         c.Args,
		Dir:          c.Dir,
		Env:          c.Environment(os.Environ()),
		Cols:         cols,
		Rows:         rows,
		PollTimeout:  c.PollTimeout,
		ReadCap:      c.ReadCap,
		QueueCap:     c.QueueCap,
		TailBytes:    c.TailBytes,
		WriteTimeout: c.WriteTimeout,
		GracePeriod:  c.GracePeriod,
		JoinTimeout:  c.JoinTimeout,
		Logger:       logger,
	}
}
