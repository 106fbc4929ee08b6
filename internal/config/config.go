// Package config provides environment-driven configuration for go-pippin commands.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// App holds process-level configuration for the pippind daemon.
// Values are read from environment variables with sensible defaults.
type App struct {
	// Server
	Port     string `env:"PIPPIN_PORT" envDefault:"8090"`
	LogLevel string `env:"PIPPIN_LOG_LEVEL" envDefault:"info"`

	// External services
	ASRBaseURL   string `env:"PIPPIN_ASR_URL"`
	ASRKey       string `env:"PIPPIN_ASR_KEY"`
	LLMBaseURL   string `env:"PIPPIN_LLM_URL" envDefault:"https://api.openai.com/v1"`
	LLMKey       string `env:"PIPPIN_LLM_KEY"`
	LLMModel     string `env:"PIPPIN_LLM_MODEL" envDefault:"gpt-4o-mini"`
	TTSBaseURL   string `env:"PIPPIN_TTS_URL"`
	TTSKey       string `env:"PIPPIN_TTS_KEY"`
	TTSVoiceID   string `env:"PIPPIN_TTS_VOICE"`
	SafetyURL    string `env:"PIPPIN_SAFETY_URL"`
	MemoryURL    string `env:"PIPPIN_MEMORY_URL"`

	// Pipeline tuning
	Profile string `env:"PIPPIN_PROFILE" envDefault:"balanced"`

	// Dispatch queue limits
	MaxConcurrentSynth int `env:"PIPPIN_MAX_CONCURRENT_SYNTH" envDefault:"3"`
	SynthPerMinute     int `env:"PIPPIN_SYNTH_PER_MINUTE" envDefault:"20"`

	// Admission limits
	InteractionsPerHour int `env:"PIPPIN_INTERACTIONS_PER_HOUR" envDefault:"60"`
}

// Load reads the daemon configuration from the environment.
func Load() (*App, error) {
	var cfg App
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
