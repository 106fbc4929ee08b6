package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns silent audio of appropriate length.
	SynthesizeFunc func(ctx context.Context, text string, profile VoiceProfile) (*AudioResult, error)

	// PrewarmFunc is called when Prewarm is invoked.
	// If nil, returns nil.
	PrewarmFunc func(ctx context.Context, profile VoiceProfile) error

	// HealthFunc is called when Health is invoked.
	// If nil, returns nil (healthy).
	HealthFunc func(ctx context.Context) error

	// CloseFunc is called when Close is invoked.
	// If nil, returns nil.
	CloseFunc func() error

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a new mock provider with sensible defaults.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile VoiceProfile) (*AudioResult, error) {
			// Silent audio, ~20ms per character at 24kHz PCM16.
			// This gives roughly natural speech pacing.
			bytesPerChar := 960
			silence := make([]byte, len(text)*bytesPerChar)

			return &AudioResult{
				Audio:      silence,
				SampleRate: outputSampleRate,
				CharCount:  len(text),
				LatencyMs:  10,
				Duration:   time.Duration(len(text)) * 20 * time.Millisecond,
			}, nil
		},
	}
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, text string, profile VoiceProfile) (*AudioResult, error) {
	m.recordCall("Synthesize", text)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, profile)
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Prewarm calls PrewarmFunc and records the call.
func (m *Mock) Prewarm(ctx context.Context, profile VoiceProfile) error {
	m.recordCall("Prewarm", profile.VoiceID)
	if m.PrewarmFunc != nil {
		return m.PrewarmFunc(ctx, profile)
	}
	return nil
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.recordCall("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.recordCall("Close", "")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// recordCall adds a call to the tracking list.
func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Text:   text,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile VoiceProfile) (*AudioResult, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// WithLatency wraps a mock to add artificial latency to Synthesize.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	original := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text string, profile VoiceProfile) (*AudioResult, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if original != nil {
			return original(ctx, text, profile)
		}
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m
}

// RateLimitedTimes returns a mock whose first n Synthesize calls fail with
// HTTP 429 and whose subsequent calls succeed.
func RateLimitedTimes(n int) *Mock {
	var mu sync.Mutex
	failures := 0
	success := NewMock().SynthesizeFunc

	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile VoiceProfile) (*AudioResult, error) {
			mu.Lock()
			fail := failures < n
			if fail {
				failures++
			}
			mu.Unlock()

			if fail {
				return nil, &APIError{StatusCode: 429, Message: "rate limited", Provider: "mock"}
			}
			return success(ctx, text, profile)
		},
	}
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
