// Package vlog configures the process-wide structured logger used by every
// other package in vindex.
package vlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance. Init must be called once during
// process startup before any component logs; until then Logger writes
// timestamped JSON to stderr with no level of its own, so package-level
// init() functions that log early don't panic.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Level names accepted by Config.Level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init builds the global logger.
type Config struct {
	Output     io.Writer
	Level      Level
	JSONOutput bool
}

// Init replaces the global Logger according to cfg. Called once from
// cmd/vindexd and cmd/vctl's main() after flags/config are parsed.
func Init(cfg Config) {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
}

// Component returns a child logger tagged with the owning subsystem, the
// convention every package in this module follows instead of passing loggers
// through constructors.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithNode tags a logger with the local node id, used once at node startup
// and then threaded through via Component(...).With().
func WithNode(nodeID string) zerolog.Logger {
	return Logger.With().Str("node_id", nodeID).Logger()
}
