// Package logging configures structured logging with zerolog.
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
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it. Unknown levels
// fall back to info.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Str("service", "photofeed").Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. The empty name is info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug:
//   - dedup no-ops (page already loaded or in flight)
//   - discarded stale completions
//   - cache hits, conditional requests
//
// Info:
//   - page loads, count resolution
//   - refresh, session start/stop
//   - server startup/shutdown
//
// Warn:
//   - page fetch failures
//   - request quota under the low-water mark
//   - cache errors (request goes to the API)
//
// Error:
//   - request quota exhausted
//   - startup and configuration failures
//
// Context Fields:
//   - component: emitting package (photo-client, coordinator, feed)
//   - resource: list resource path
//   - page: 0-based page index
//   - generation: session epoch
//   - range_start, range_end: global rows of a loaded page
//   - status: HTTP status code
//   - error_class: network, server, decode, client, rate_limit
//   - duration: fetch or request duration
//   - remaining, limit: request quota
//   - count: collection size
