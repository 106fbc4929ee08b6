// Package backoff provides a reusable retry delay policy for external calls.
//
// Every wrapper around a rate-limited service shares one Policy instead of
// scattering ad hoc sleep schedules across call sites.
package backoff

import (
	"context"
	"time"
)

// Policy is an ordered delay schedule with a maximum attempt count.
// Attempt numbers past the end of the schedule are clamped to the last delay.
type Policy struct {
	// Delays is the wait before each retry, indexed by attempt number.
	Delays []time.Duration

	// MaxAttempts is the total number of attempts allowed (initial + retries).
	MaxAttempts int
}

// Default returns the standard synthesis retry policy: 1s, 2s, 4s, 8s.
func Default() Policy {
	return Policy{
		Delays:      []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second},
		MaxAttempts: 4,
	}
}

// Delay returns the wait before retry number attempt (0-based).
// Attempts beyond the schedule are clamped to the final delay.
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(p.Delays) {
		attempt = len(p.Delays) - 1
	}
	return p.Delays[attempt]
}

// Exhausted reports whether the given attempt number is past the policy limit.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Wait sleeps for the delay of the given attempt, honoring context cancellation.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
