// Package logging configures the process-wide zerolog logger. Engine
// packages hold a tagged child logger from Component instead of the
// global logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Init replaces it.
var Logger zerolog.Logger

// Level mirrors zerolog's level type.
type Level = zerolog.Level

// Levels accepted by Config.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level that gets written.
	Level Level
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Pretty switches from JSON lines to the console writer.
	Pretty bool
	// TimeFormat specifies the time format. Defaults to RFC3339.
	TimeFormat string
}

// DefaultConfig returns the configuration in effect before Init is
// called: info-level JSON lines on stderr.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Init replaces the root logger. The CLI calls it once at startup;
// tests call it to capture output.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	format := cfg.TimeFormat
	if format == "" {
		format = time.RFC3339
	}

	zerolog.TimeFieldFormat = format
	var w io.Writer = out
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: format}
	}

	Logger = zerolog.New(w).Level(cfg.Level).With().Timestamp().Logger()
}

// ParseLevel maps a configuration string onto a level, case-insensitively.
// Unrecognized values fall back to info so a bad setting never stops the
// engine.
func ParseLevel(level string) Level {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "warning" {
		s = "warn"
	}
	if s == "" {
		return InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return InfoLevel
	}
	return lvl
}

// Component returns a child logger tagged with a component name.
// Packages hold one of these instead of the global logger.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func init() {
	Init(DefaultConfig())
}
