// Package logging configures the service's zerolog loggers.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceName is attached to every log line as the "service" field.
const ServiceName = "chapters-api"

// LogLevel is a minimum severity name.
type LogLevel string

// Supported levels.
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// ParseLevel validates a level name. Matching is case-insensitive and
// "warning" is accepted as an alias of warn.
func ParseLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if _, ok := levels[name]; !ok {
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	if name == "warning" {
		return LevelWarn, nil
	}
	return LogLevel(name), nil
}

// zerologLevel maps l onto zerolog, falling back to info for unknown names.
func (l LogLevel) zerologLevel() zerolog.Level {
	if lvl, ok := levels[strings.ToLower(string(l))]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel `yaml:"level"`

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool `yaml:"pretty"`

	// Output defaults to os.Stderr.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global logger and level and returns the new root
// logger. Component loggers built afterwards with NewLogger inherit it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
	return log.Logger
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// FromContext returns the logger stored in ctx by the request middleware,
// or fallback when there is none.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// Levels in use:
//
// Debug: cache hit/miss per key, per-client rate limit blocks, bypassed
// list lookups.
//
// Info: server start and stop, selected rate limit backend, upload and
// import summaries.
//
// Warn: cache unreachable or corrupt entries, limiter on in-process
// counters, store errors that fail open, rejected admin tokens.
//
// Error: document store failures and startup failures.
//
// Common fields: component, key, client, backend, request_id, inserted, failed.
