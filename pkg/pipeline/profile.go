package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// LatencyProfile selects one of the coordinator's tuning presets. One
// coordinator serves every preset; only the settings change.
type LatencyProfile int

const (
	// ProfileBalanced trades a little first-audio latency for fewer, larger
	// chunks. The default.
	ProfileBalanced LatencyProfile = iota

	// ProfileRelaxed favors quality: generous stage timeouts, large chunks.
	// Suited to bedtime stories and other long-form replies.
	ProfileRelaxed

	// ProfileRealtime favors responsiveness: tight timeouts, small chunks.
	ProfileRealtime
)

// String returns the profile name.
func (p LatencyProfile) String() string {
	switch p {
	case ProfileBalanced:
		return "balanced"
	case ProfileRelaxed:
		return "relaxed"
	case ProfileRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// ParseProfile converts a profile name into a LatencyProfile.
func ParseProfile(name string) (LatencyProfile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "balanced":
		return ProfileBalanced, nil
	case "relaxed":
		return ProfileRelaxed, nil
	case "realtime":
		return ProfileRealtime, nil
	default:
		return ProfileBalanced, fmt.Errorf("pipeline: unknown profile %q", name)
	}
}

// Settings holds the per-profile tuning values the coordinator runs with.
type Settings struct {
	// Stage timeouts. Each guards one external call; exceeding one degrades
	// that stage to its fallback without aborting the run.
	RecognizeTimeout time.Duration
	SafetyTimeout    time.Duration
	MemoryTimeout    time.Duration
	GenerateTimeout  time.Duration
	PrewarmTimeout   time.Duration

	// ChunkThreshold is the reply length in characters above which the
	// chunked progressive-delivery path is used instead of a single call.
	ChunkThreshold int

	// Chunk size bounds for the progressive path.
	MaxChunkSize int
	MinChunkSize int

	// MinWords is the minimum acceptable reply length; shorter replies get
	// one continuation call.
	MinWords int

	// MaxRetries is the per-chunk dispatch retry budget.
	MaxRetries int
}

// Settings returns the tuning preset for the profile.
func (p LatencyProfile) Settings() Settings {
	switch p {
	case ProfileRelaxed:
		return Settings{
			RecognizeTimeout: 10 * time.Second,
			SafetyTimeout:    3 * time.Second,
			MemoryTimeout:    3 * time.Second,
			GenerateTimeout:  20 * time.Second,
			PrewarmTimeout:   3 * time.Second,
			ChunkThreshold:   1500,
			MaxChunkSize:     400,
			MinChunkSize:     80,
			MinWords:         250,
			MaxRetries:       3,
		}
	case ProfileRealtime:
		return Settings{
			RecognizeTimeout: 4 * time.Second,
			SafetyTimeout:    1500 * time.Millisecond,
			MemoryTimeout:    time.Second,
			GenerateTimeout:  8 * time.Second,
			PrewarmTimeout:   time.Second,
			ChunkThreshold:   1000,
			MaxChunkSize:     240,
			MinChunkSize:     50,
			MinWords:         250,
			MaxRetries:       2,
		}
	default:
		return Settings{
			RecognizeTimeout: 6 * time.Second,
			SafetyTimeout:    2 * time.Second,
			MemoryTimeout:    2 * time.Second,
			GenerateTimeout:  12 * time.Second,
			PrewarmTimeout:   2 * time.Second,
			ChunkThreshold:   1500,
			MaxChunkSize:     300,
			MinChunkSize:     60,
			MinWords:         250,
			MaxRetries:       3,
		}
	}
}
