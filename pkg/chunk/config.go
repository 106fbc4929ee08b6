package chunk

import "log/slog"

// Config holds delivery engine settings.
type Config struct {
	// MaxChunkSize is the target upper bound on chunk length in characters.
	MaxChunkSize int

	// MinChunkSize is the smallest acceptable trailing chunk; shorter
	// remainders merge into the previous chunk.
	MinChunkSize int

	// FillerText replaces a chunk whose synthesis failed permanently.
	FillerText string

	// MaxRetries is passed to the dispatch queue for each chunk.
	MaxRetries int

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the engine.
type Option func(*Config)

// WithChunkSize sets the chunk size bounds.
func WithChunkSize(max, min int) Option {
	return func(c *Config) {
		if max > 0 {
			c.MaxChunkSize = max
		}
		if min > 0 {
			c.MinChunkSize = min
		}
	}
}

// WithFillerText sets the neutral filler for failed chunks.
func WithFillerText(text string) Option {
	return func(c *Config) {
		if text != "" {
			c.FillerText = text
		}
	}
}

// WithMaxRetries sets the per-chunk retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxRetries = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible delivery defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxChunkSize: 300,
		MinChunkSize: 60,
		FillerText:   "And then, the story went on.",
		MaxRetries:   3,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger != nil {
		c.Logger = c.Logger.With("component", "chunk.engine")
	}
}
