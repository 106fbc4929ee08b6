package pipeline

import (
	"log/slog"
	"strings"

	"github.com/pippinlabs/go-pippin/pkg/session"
)

// Config holds coordinator settings.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Profile selects the latency preset the coordinator runs with.
	Profile LatencyProfile

	// SystemPrompt is the style/system instruction block passed to the
	// generator. Prompt construction itself happens upstream.
	SystemPrompt string

	// Locale is the recognition locale hint.
	Locale string

	// ChildAge and Category parameterize the safety check.
	ChildAge int
	Category string

	// Canned replies for degraded paths. These are spoken (or returned)
	// instead of raw errors.
	FallbackText    string
	UnheardText     string
	RedirectText    string
	BreakText       string
	RateLimitedText string
	MicLockedText   string

	// Shaper applies length/structure adjustments to generated text.
	// Treated as a pure function; the default trims whitespace.
	Shaper func(text string) string

	// Admission holds the per-session throttle settings.
	Admission session.AdmissionConfig

	// Events receives pipeline state changes. Optional.
	Events Publisher

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the coordinator.
type Option func(*Config)

// WithProfile selects the latency preset.
func WithProfile(p LatencyProfile) Option {
	return func(c *Config) { c.Profile = p }
}

// WithSystemPrompt sets the generator's system instructions.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) {
		if prompt != "" {
			c.SystemPrompt = prompt
		}
	}
}

// WithLocale sets the recognition locale hint.
func WithLocale(locale string) Option {
	return func(c *Config) {
		if locale != "" {
			c.Locale = locale
		}
	}
}

// WithAudience sets the age and content category used for safety checks.
func WithAudience(age int, category string) Option {
	return func(c *Config) {
		if age > 0 {
			c.ChildAge = age
		}
		if category != "" {
			c.Category = category
		}
	}
}

// WithShaper sets the content-shaping function.
func WithShaper(shape func(string) string) Option {
	return func(c *Config) {
		if shape != nil {
			c.Shaper = shape
		}
	}
}

// WithAdmission sets the per-session throttle settings.
func WithAdmission(cfg session.AdmissionConfig) Option {
	return func(c *Config) { c.Admission = cfg }
}

// WithEvents sets the event publisher.
func WithEvents(p Publisher) Option {
	return func(c *Config) { c.Events = p }
}

// WithFallbackText sets the generic degraded-path reply.
func WithFallbackText(text string) Option {
	return func(c *Config) {
		if text != "" {
			c.FallbackText = text
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible coordinator defaults.
func DefaultConfig() *Config {
	return &Config{
		Profile:         ProfileBalanced,
		SystemPrompt:    "You are Pippin, a warm and curious voice companion. Keep replies friendly and age-appropriate.",
		Locale:          "en-US",
		ChildAge:        8,
		Category:        "general",
		FallbackText:    "Hmm, let me think about that one. Can you ask me again?",
		UnheardText:     "I didn't quite catch that. Could you say it again?",
		RedirectText:    "Let's talk about something else. What's your favorite animal?",
		BreakText:       "We've been chatting for a while! How about a little stretch break?",
		RateLimitedText: "Wow, so many questions! Let's take a short breather.",
		MicLockedText:   "I'm resting my ears for a moment. Back soon!",
		Shaper:          strings.TrimSpace,
		Admission:       session.DefaultAdmissionConfig(),
		Logger:          slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger != nil {
		c.Logger = c.Logger.With("component", "pipeline.coordinator")
	}
}
