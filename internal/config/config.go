// Package config provides centralized configuration management for the
// console. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Reporting ReportingConfig
	Wizard    WizardConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// ReportingConfig holds settings for the external reporting service.
type ReportingConfig struct {
	// BaseURL is the reporting service root, e.g. http://localhost:8000 (required)
	// Supports both REPORTING_BASE_URL and REPORTING_API_URL for compatibility
	BaseURL string `env:"REPORTING_BASE_URL" envAlt:"REPORTING_API_URL" required:"true"`

	// Timeout is the per-request deadline for reporting service calls (default: 30s)
	Timeout time.Duration `env:"REPORTING_TIMEOUT" default:"30s"`
}

// WizardConfig holds submission workflow settings.
type WizardConfig struct {
	// NavDelay is how long the submission confirmation is shown before
	// navigation to the report view is signalled (default: 2s)
	NavDelay time.Duration `env:"WIZARD_NAV_DELAY" default:"2s"`

	// SessionTTL is how long an idle wizard session is kept (default: 30m)
	SessionTTL time.Duration `env:"WIZARD_SESSION_TTL" default:"30m"`

	// JanitorInterval is how often idle sessions are swept (default: 5m)
	JanitorInterval time.Duration `env:"WIZARD_JANITOR_INTERVAL" default:"5m"`

	// MaxConcurrentDispatches caps parallel report submissions (default: 8)
	MaxConcurrentDispatches int `env:"WIZARD_MAX_CONCURRENT_DISPATCHES" default:"8"`

	// DispatchWait is how long a submission waits for a dispatch slot (default: 15s)
	DispatchWait time.Duration `env:"WIZARD_DISPATCH_WAIT" default:"15s"`

	// MaxCSVSize is the maximum accepted CSV upload in bytes (default: 10MB)
	MaxCSVSize int64 `env:"WIZARD_MAX_CSV_SIZE" default:"10485760"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
