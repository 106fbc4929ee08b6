package tts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pippinlabs/go-pippin/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()
	profile := tts.DefaultVoiceProfile()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Hello world", profile)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio data")
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
		if result.SampleRate != 24000 {
			t.Errorf("expected 24000 sample rate, got %d", result.SampleRate)
		}
	})

	t.Run("Prewarm returns nil", func(t *testing.T) {
		if err := mock.Prewarm(ctx, profile); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
		if mock.CallCount("Prewarm") != 1 {
			t.Errorf("expected 1 Prewarm call, got %d", mock.CallCount("Prewarm"))
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	_, err := mock.Synthesize(ctx, "Hello", tts.DefaultVoiceProfile())
	if !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	t.Run("Synthesize has latency", func(t *testing.T) {
		start := time.Now()
		_, err := mock.Synthesize(context.Background(), "Hello", tts.DefaultVoiceProfile())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if time.Since(start) < 50*time.Millisecond {
			t.Error("expected at least 50ms latency")
		}
	})

	t.Run("Context cancellation works", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := mock.Synthesize(ctx, "Hello", tts.DefaultVoiceProfile())
		if err == nil {
			t.Error("expected context deadline error")
		}
	})
}

func TestRateLimitedTimes(t *testing.T) {
	mock := tts.RateLimitedTimes(2)
	ctx := context.Background()
	profile := tts.DefaultVoiceProfile()

	for i := 0; i < 2; i++ {
		_, err := mock.Synthesize(ctx, "Hello", profile)
		if !tts.IsRateLimitError(err) {
			t.Fatalf("call %d: expected rate limit error, got %v", i+1, err)
		}
	}

	result, err := mock.Synthesize(ctx, "Hello", profile)
	if err != nil {
		t.Fatalf("third call should succeed, got %v", err)
	}
	if len(result.Audio) == 0 {
		t.Error("expected audio data")
	}
}

func TestAPIError(t *testing.T) {
	t.Run("IsRateLimited", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 429, Message: "rate limited"}
		if !err.IsRateLimited() {
			t.Error("expected IsRateLimited true")
		}
		if !err.IsRetryable() {
			t.Error("expected IsRetryable true")
		}
	})

	t.Run("IsServerError", func(t *testing.T) {
		for _, code := range []int{500, 502, 503, 504} {
			err := &tts.APIError{StatusCode: code}
			if !err.IsServerError() {
				t.Errorf("expected IsServerError true for %d", code)
			}
			if !err.IsRetryable() {
				t.Errorf("expected IsRetryable true for %d", code)
			}
		}
	})

	t.Run("Permanent errors are not retryable", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 400, Message: "bad request"}
		if err.IsRetryable() {
			t.Error("expected IsRetryable false for 400")
		}
	})

	t.Run("Error message format", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 400, Message: "bad request", Provider: "elevenlabs"}
		if err.Error() != "tts [elevenlabs]: API error 400: bad request" {
			t.Errorf("unexpected error message: %s", err.Error())
		}
	})
}

func TestIsRateLimitError(t *testing.T) {
	wrapped := tts.WrapError("elevenlabs", &tts.APIError{StatusCode: 429, Provider: "elevenlabs"})
	if !tts.IsRateLimitError(wrapped) {
		t.Error("expected wrapped 429 to classify as rate limit error")
	}
	if tts.IsRateLimitError(errors.New("plain")) {
		t.Error("plain errors should not classify as rate limit errors")
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("NewHTTP requires API key", func(t *testing.T) {
		_, err := tts.NewHTTP()
		if err != tts.ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("NewHTTP passes with API key", func(t *testing.T) {
		provider, err := tts.NewHTTP(tts.WithAPIKey("test-key"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer provider.Close()
	})
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection failed")
	err := tts.WrapError("elevenlabs", inner)

	if err.Error() != "tts [elevenlabs]: connection failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	var pe *tts.ProviderError
	if !errors.As(err, &pe) {
		t.Error("expected ProviderError")
	}
	if pe.Provider != "elevenlabs" {
		t.Errorf("expected provider elevenlabs, got %s", pe.Provider)
	}
}
