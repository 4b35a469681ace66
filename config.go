package auth

import (
	"log/slog"

	"github.com/Zhq8745/voice-account-auth/instrumentation"
	"github.com/Zhq8745/voice-account-auth/internal/clock"
	"github.com/Zhq8745/voice-account-auth/security"
	"github.com/Zhq8745/voice-account-auth/token"
)

// Config holds the authenticator configuration.
// Structured using composition; zero values get each component's defaults.
type Config struct {
	// Tokens configures access/refresh TTLs, skew, and the revocation sweep.
	Tokens token.ServiceConfig

	// Lockout configures the failure-window thresholds and block durations.
	Lockout security.LockoutConfig

	// CSRF configures anti-forgery token TTL and sweep.
	CSRF security.CSRFConfig

	// Events configures the security event log capacity.
	Events security.EventLogConfig

	// Throttle configures the optional per-IP request throttle in front of
	// the login path. Rate 0 disables it.
	Throttle ThrottleConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Clock is the time source, injectable for deterministic testing.
	// Propagated to every component that does expiry or window arithmetic.
	Clock clock.Clock

	// Instrumentation enables OpenTelemetry metrics and tracing (optional).
	Instrumentation *instrumentation.Instrumentation
}

// ThrottleConfig holds request throttle configuration.
type ThrottleConfig struct {
	// Rate is login requests per second allowed per IP. Zero disables.
	Rate int

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// MaxEntries caps the number of tracked IPs (LRU beyond that).
	MaxEntries int
}

func (c *Config) withDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}

	// Components inherit the shared logger and clock unless explicitly set.
	if c.Tokens.Logger == nil {
		c.Tokens.Logger = c.Logger
	}
	if c.Tokens.Clock == nil {
		c.Tokens.Clock = c.Clock
	}
	if c.Lockout.Logger == nil {
		c.Lockout.Logger = c.Logger
	}
	if c.Lockout.Clock == nil {
		c.Lockout.Clock = c.Clock
	}
	if c.CSRF.Logger == nil {
		c.CSRF.Logger = c.Logger
	}
	if c.CSRF.Clock == nil {
		c.CSRF.Clock = c.Clock
	}
	if c.Events.Logger == nil {
		c.Events.Logger = c.Logger
	}
	if c.Events.Clock == nil {
		c.Events.Clock = c.Clock
	}
	if c.Throttle.Burst <= 0 {
		c.Throttle.Burst = c.Throttle.Rate
	}
}
