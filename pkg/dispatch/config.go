package dispatch

import (
	"log/slog"
	"time"

	"github.com/pippinlabs/go-pippin/pkg/backoff"
)

// Config holds dispatch queue limits.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// MaxConcurrent caps simultaneous in-flight synthesis calls.
	MaxConcurrent int

	// MaxPerWindow caps dispatches inside one rolling window.
	MaxPerWindow int

	// Window is the rolling rate-limit window.
	Window time.Duration

	// DedupWindow is how long an identical request is treated as a duplicate.
	DedupWindow time.Duration

	// Policy is the retry schedule for rate-limit-class errors.
	Policy backoff.Policy

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the queue.
type Option func(*Config)

// WithMaxConcurrent caps simultaneous in-flight calls.
func WithMaxConcurrent(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxConcurrent = n
		}
	}
}

// WithRateLimit caps dispatches per rolling window.
func WithRateLimit(maxPerWindow int, window time.Duration) Option {
	return func(c *Config) {
		if maxPerWindow > 0 {
			c.MaxPerWindow = maxPerWindow
		}
		if window > 0 {
			c.Window = window
		}
	}
}

// WithDedupWindow sets the duplicate-suppression window.
func WithDedupWindow(window time.Duration) Option {
	return func(c *Config) {
		if window > 0 {
			c.DedupWindow = window
		}
	}
}

// WithPolicy sets the retry backoff policy.
func WithPolicy(policy backoff.Policy) Option {
	return func(c *Config) {
		c.Policy = policy
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default limits.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent: 3,
		MaxPerWindow:  20,
		Window:        60 * time.Second,
		DedupWindow:   10 * time.Second,
		Policy:        backoff.Default(),
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger != nil {
		c.Logger = c.Logger.With("component", "dispatch.queue")
	}
}
