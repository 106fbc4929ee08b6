package session_test

import (
	"testing"
	"time"

	"github.com/pippinlabs/go-pippin/pkg/session"
)

func TestAdmissionProceedIncrementsCount(t *testing.T) {
	registry := session.NewRegistry()
	admission := session.NewAdmission(session.DefaultAdmissionConfig(), nil)
	s := registry.GetOrCreate("s1")

	for i := 0; i < 5; i++ {
		if d := admission.Check(s); d != session.Proceed {
			t.Fatalf("check %d: expected Proceed, got %v", i, d)
		}
	}
	if s.InteractionCount() != 5 {
		t.Errorf("expected 5 interactions, got %d", s.InteractionCount())
	}
}

func TestAdmissionRateLimitThenMicLock(t *testing.T) {
	// Scenario: 60-interaction/hour ceiling; the 61st request is rate
	// limited and the next one hits the mic lock.
	registry := session.NewRegistry()
	cfg := session.AdmissionConfig{
		MaxPerHour:   60,
		LockDuration: 5 * time.Minute,
		LongSession:  0,
	}
	admission := session.NewAdmission(cfg, nil)
	s := registry.GetOrCreate("s1")

	for i := 0; i < 60; i++ {
		if d := admission.Check(s); d != session.Proceed {
			t.Fatalf("interaction %d: expected Proceed, got %v", i+1, d)
		}
	}

	if d := admission.Check(s); d != session.RateLimited {
		t.Fatalf("61st request: expected RateLimited, got %v", d)
	}
	if d := admission.Check(s); d != session.MicLocked {
		t.Fatalf("request during lock: expected MicLocked, got %v", d)
	}

	// Counter only moves on the Proceed branch.
	if s.InteractionCount() != 60 {
		t.Errorf("expected 60 interactions, got %d", s.InteractionCount())
	}
}

func TestAdmissionMicLockExpires(t *testing.T) {
	clock := time.Now()
	now := func() time.Time { return clock }

	registry := session.NewRegistry(session.WithRegistryClock(now))
	cfg := session.AdmissionConfig{MaxPerHour: 2, LockDuration: time.Minute}
	admission := session.NewAdmission(cfg, nil, session.WithClock(func() time.Time { return clock }))
	s := registry.GetOrCreate("s1")

	admission.Check(s)
	admission.Check(s)
	if d := admission.Check(s); d != session.RateLimited {
		t.Fatalf("expected RateLimited, got %v", d)
	}
	if d := admission.Check(s); d != session.MicLocked {
		t.Fatalf("expected MicLocked, got %v", d)
	}

	// After the lock expires the rate check applies again; the session is
	// still over its ceiling inside the clamped first hour.
	clock = clock.Add(2 * time.Minute)
	if d := admission.Check(s); d != session.RateLimited {
		t.Errorf("expected RateLimited after lock expiry, got %v", d)
	}
}

func TestAdmissionBreakSuggestedOncePerWindow(t *testing.T) {
	clock := time.Now()
	registry := session.NewRegistry(session.WithRegistryClock(func() time.Time { return clock }))
	cfg := session.AdmissionConfig{
		MaxPerHour:   1000,
		LockDuration: time.Minute,
		LongSession:  45 * time.Minute,
	}
	admission := session.NewAdmission(cfg, nil, session.WithClock(func() time.Time { return clock }))
	s := registry.GetOrCreate("s1")

	if d := admission.Check(s); d != session.Proceed {
		t.Fatalf("expected Proceed, got %v", d)
	}

	// 50 minutes in: long session, first nudge.
	clock = clock.Add(50 * time.Minute)
	if d := admission.Check(s); d != session.BreakSuggested {
		t.Fatalf("expected BreakSuggested, got %v", d)
	}

	// Right after: suggestion already made inside the window.
	clock = clock.Add(time.Minute)
	if d := admission.Check(s); d != session.Proceed {
		t.Fatalf("expected Proceed after recent suggestion, got %v", d)
	}

	// Another threshold later: nudge again.
	clock = clock.Add(46 * time.Minute)
	if d := admission.Check(s); d != session.BreakSuggested {
		t.Fatalf("expected second BreakSuggested, got %v", d)
	}
}

func TestAdmissionDecisionStrings(t *testing.T) {
	tests := []struct {
		d    session.Decision
		want string
	}{
		{session.Proceed, "proceed"},
		{session.MicLocked, "mic_locked"},
		{session.RateLimited, "rate_limited"},
		{session.BreakSuggested, "break_suggested"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
