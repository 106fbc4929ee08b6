package session

import (
	"log/slog"
	"time"
)

// Decision is the admission controller's verdict on an inbound utterance.
type Decision int

const (
	// Proceed admits the utterance into the pipeline.
	Proceed Decision = iota

	// MicLocked rejects the utterance because a rate-limit lock is active.
	MicLocked

	// RateLimited rejects the utterance and starts a mic lock because the
	// session exceeded its interaction-rate ceiling.
	RateLimited

	// BreakSuggested admits a soft nudge to take a break instead of a reply.
	BreakSuggested
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case MicLocked:
		return "mic_locked"
	case RateLimited:
		return "rate_limited"
	case BreakSuggested:
		return "break_suggested"
	default:
		return "unknown"
	}
}

// AdmissionConfig holds the per-session throttle settings.
type AdmissionConfig struct {
	// MaxPerHour is the interaction-rate ceiling.
	MaxPerHour int

	// LockDuration is how long the mic stays locked after the ceiling is hit.
	LockDuration time.Duration

	// LongSession is the session duration after which a break is suggested,
	// and the spacing between repeat suggestions.
	LongSession time.Duration
}

// DefaultAdmissionConfig returns the standard throttle settings.
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		MaxPerHour:   60,
		LockDuration: 5 * time.Minute,
		LongSession:  45 * time.Minute,
	}
}

// Admission gates entry of utterances into the pipeline.
type Admission struct {
	cfg    AdmissionConfig
	logger *slog.Logger

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// AdmissionOption configures the controller.
type AdmissionOption func(*Admission)

// WithClock replaces the controller's clock. Intended for tests.
func WithClock(now func() time.Time) AdmissionOption {
	return func(a *Admission) { a.now = now }
}

// NewAdmission creates an admission controller.
func NewAdmission(cfg AdmissionConfig, logger *slog.Logger, opts ...AdmissionOption) *Admission {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Admission{
		cfg:    cfg,
		logger: logger.With("component", "session.admission"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check runs the ordered admission chain and returns exactly one decision.
// Side effects (mic lock, counter, break timestamp) happen only on the
// branch taken.
func (a *Admission) Check(s *Session) Decision {
	now := a.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Active mic lock.
	if !s.micLockedUntil.IsZero() && now.Before(s.micLockedUntil) {
		return MicLocked
	}

	// 2. Interaction-rate ceiling, counting the request being admitted.
	// Elapsed time is clamped to one hour so the ceiling acts as an
	// absolute count inside the first hour of a session.
	elapsedHours := now.Sub(s.startTime).Hours()
	if elapsedHours < 1 {
		elapsedHours = 1
	}
	projected := float64(s.interactionCount+1) / elapsedHours
	if a.cfg.MaxPerHour > 0 && projected > float64(a.cfg.MaxPerHour) {
		s.micLockedUntil = now.Add(a.cfg.LockDuration)
		a.logger.Info("interaction ceiling hit, locking mic",
			"session", s.ID,
			"interactions", s.interactionCount,
			"locked_until", s.micLockedUntil,
		)
		return RateLimited
	}

	// 3. Long-session break nudge, at most once per threshold window.
	if a.cfg.LongSession > 0 && now.Sub(s.startTime) > a.cfg.LongSession {
		if s.lastBreakSuggestion.IsZero() || now.Sub(s.lastBreakSuggestion) > a.cfg.LongSession {
			s.lastBreakSuggestion = now
			return BreakSuggested
		}
	}

	// 4. Admitted.
	s.interactionCount++
	return Proceed
}
