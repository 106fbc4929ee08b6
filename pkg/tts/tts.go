// Package tts provides the speech-synthesis client for the response pipeline.
//
// The package exposes a Provider interface so the dispatch queue and tests can
// swap the real HTTP-backed service for mocks. Synthesis calls carry a
// VoiceProfile so one provider instance can serve every session.
//
// Example usage:
//
//	provider, _ := tts.NewHTTP(
//	    tts.WithAPIKey(os.Getenv("PIPPIN_TTS_KEY")),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello there!", tts.DefaultVoiceProfile())
//	// result.Audio contains the synthesized audio bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the speech-synthesis interface.
// All implementations must satisfy this interface for seamless swapping.
type Provider interface {
	// Synthesize converts text to audio using the given voice profile,
	// returning the complete audio buffer.
	Synthesize(ctx context.Context, text string, profile VoiceProfile) (*AudioResult, error)

	// Prewarm establishes a connection to the synthesis service ahead of the
	// first Synthesize call for the profile. It only needs the voice profile,
	// so it can run concurrently with text generation.
	Prewarm(ctx context.Context, profile VoiceProfile) error

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// VoiceProfile describes the voice used for a synthesis call.
type VoiceProfile struct {
	// VoiceID identifies the voice at the synthesis service.
	VoiceID string

	// Speed is a speech speed multiplier (1.0 = normal).
	Speed float64

	// Stability controls voice consistency (0.0-1.0).
	// Lower values = more expressive/variable, higher = more consistent.
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64
}

// DefaultVoiceProfile returns sensible defaults for voice synthesis.
func DefaultVoiceProfile() VoiceProfile {
	return VoiceProfile{
		Speed:           1.0,
		Stability:       0.5,
		SimilarityBoost: 0.75,
	}
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data.
	Audio []byte

	// SampleRate in Hz.
	SampleRate int

	// Duration is the estimated audio playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to last byte in milliseconds.
	LatencyMs int64
}
