// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer for console output (default: os.Stderr).
	Output io.Writer

	// File, when set, receives a JSON copy of every event.
	File string

	// Truncate empties File on open instead of appending.
	Truncate bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. cfg.File is ignored; use
// SetupWithFile to also write a log file.
func Setup(cfg Config) zerolog.Logger {
	return install(cfg, nil)
}

// SetupWithFile configures the global logger like Setup and additionally
// writes every event as JSON to cfg.File. The returned closer releases the
// file and is safe to call when no file was configured.
func SetupWithFile(cfg Config) (zerolog.Logger, io.Closer, error) {
	if cfg.File == "" {
		return install(cfg, nil), nopCloser{}, nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if cfg.Truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(cfg.File, flags, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	return install(cfg, f), f, nil
}

// install builds the logger, makes it global and sets the global level.
func install(cfg Config, file io.Writer) zerolog.Logger {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}
	if file != nil {
		out = zerolog.MultiLevelWriter(out, file)
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a configured level name onto a zerolog level. "warning"
// and "critical" are accepted as aliases of warn and error.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error", "critical":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Per-line validation of input files
//   - Cache operations (hit/miss, key, TTL)
//   - Throttle waits
//
// Info: Normal operation events
//   - Per-record lookup outcome and batch progress
//   - File start/finish, report written, rows persisted
//   - Service status and member state availability
//
// Warn: Warning conditions that don't prevent operation
//   - Rejected input rows
//   - Quota rejections and the retry pass
//   - Transport failures recorded as lookup results
//   - Cache and quota tracker errors (processing continues)
//
// Error: Error conditions requiring attention
//   - Service unreachable or unavailable (run aborted)
//   - Configuration errors
//   - Persistence failures
//
// Context Fields:
//   - component: emitting component (vies-client, batch, app, store)
//   - file: input file name
//   - line: input line number
//   - country_code / identifier: record key
//   - pass: batch pass (1 or 2)
//   - status / error_code: lookup outcome
//   - completed / total: batch progress
//   - error_class: transport classification (network, server, client, decode)
