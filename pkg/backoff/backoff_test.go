package backoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/pippinlabs/go-pippin/pkg/backoff"
)

func TestDelayClamping(t *testing.T) {
	p := backoff.Default()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 8 * time.Second},  // Clamped to last entry
		{10, 8 * time.Second}, // Still clamped
		{-1, 1 * time.Second}, // Negative treated as first
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestEmptyPolicy(t *testing.T) {
	p := backoff.Policy{}
	if got := p.Delay(0); got != 0 {
		t.Errorf("expected zero delay, got %v", got)
	}
	if !p.Exhausted(0) {
		t.Error("empty policy should be immediately exhausted")
	}
}

func TestExhausted(t *testing.T) {
	p := backoff.Default()
	if p.Exhausted(3) {
		t.Error("attempt 3 should be within MaxAttempts=4")
	}
	if !p.Exhausted(4) {
		t.Error("attempt 4 should exhaust MaxAttempts=4")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	p := backoff.Policy{
		Delays:      []time.Duration{time.Minute},
		MaxAttempts: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx, 0)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly on cancellation")
	}
}

func TestWaitZeroDelay(t *testing.T) {
	p := backoff.Policy{Delays: nil, MaxAttempts: 1}
	if err := p.Wait(context.Background(), 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
