// Package logging configures the process-wide zerolog logger and hands out
// component loggers.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is the textual level accepted in LOG_LEVEL.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentCacheClient = "cache-client"
	ComponentTransport   = "transport"
	ComponentPrefetch    = "prefetch"
	ComponentConfig      = "config"
	ComponentContacts    = "contacts"
	ComponentLeads       = "leads"
	ComponentProxy       = "proxy"
)

// Config selects level and format of the process logger.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// ConfigFromEnv builds a Config from LOG_LEVEL and LOG_PRETTY using lookup
// (os.LookupEnv in production). Unset or unparsable values keep the
// defaults.
func ConfigFromEnv(lookup func(string) (string, bool)) Config {
	cfg := DefaultConfig()
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Level = LogLevel(strings.ToLower(v))
	}
	if v, ok := lookup("LOG_PRETTY"); ok {
		if pretty, err := strconv.ParseBool(v); err == nil {
			cfg.Pretty = pretty
		}
	}
	return cfg
}

// Setup installs the global zerolog logger and returns it as the base
// logger for components.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel maps level onto zerolog; unknown names fall back to info.
func parseLevel(level LogLevel) zerolog.Level {
	name := strings.ToLower(string(level))
	if name == "warning" {
		name = string(LevelWarn)
	}
	switch l, err := zerolog.ParseLevel(name); {
	case err != nil, name == "", l < zerolog.DebugLevel, l > zerolog.ErrorLevel:
		return zerolog.InfoLevel
	default:
		return l
	}
}

// NewLogger returns a child of the global logger with the given component.
func NewLogger(component string) zerolog.Logger {
	return WithComponent(log.Logger, component)
}

// WithComponent returns a child of base tagged with component.
func WithComponent(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: detail that is only useful while investigating
//   - Cache hit/miss lines (only when the debug preference flags are on)
//   - Write-through and invalidation of single resources
//   - Outgoing requests and retry backoff
//
// Info: normal operation events
//   - Entities created, deleted or moved to another status
//   - Preference changes and cache resets
//   - Prefetch batch summaries
//   - Server startup/shutdown
//
// Warn: degraded but working
//   - Stale value served after a failed network fetch
//   - Failed background revalidation or prefetch task
//   - Preference store unreachable (defaults or in-memory value in use)
//   - Circuit breaker state changes
//
// Error: requires attention
//   - Requests that failed after all retries
//   - Startup configuration errors
//
// Context Fields:
//   - component: emitting component (see the Component constants)
//   - resource: cache resource (contacts, leads, projects, ...)
//   - strategy: read strategy (cache-first, network-first, ...)
//   - key: cache or prefetch key
//   - url: request URL
//   - status: HTTP status code
//   - error_class: client, server, rate_limit or network
//   - age: cache entry age
