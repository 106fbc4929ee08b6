// Package dispatch provides the rate-limited dispatch queue for synthesis calls.
//
// The queue is the single gate in front of the speech-synthesis service. It
// enforces two process-wide limits: a cap on concurrent in-flight calls and a
// cap on calls per rolling window. Rate-limit-class failures are retried on a
// shared backoff schedule; duplicate requests inside the dedup window are
// coalesced onto one underlying call.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pippinlabs/go-pippin/pkg/tts"
)

// Sentinel errors.
var (
	// ErrRetriesExhausted is returned when every attempt hit a retryable error.
	ErrRetriesExhausted = errors.New("dispatch: retries exhausted")
)

// Request describes one synthesis call.
type Request struct {
	// Text to synthesize.
	Text string

	// Profile is the voice to use.
	Profile tts.VoiceProfile

	// SessionID tags the request for cancellation bookkeeping.
	SessionID string

	// DedupKey identifies logically identical requests. Requests sharing a
	// key inside the dedup window share one underlying call. Empty disables
	// deduplication.
	DedupKey string

	// SubmittedAt is when the caller created the request.
	SubmittedAt time.Time
}

// Queue is the bounded, rate-limited synthesis caller.
// One Queue serves the whole process; both limits are global.
type Queue struct {
	provider tts.Provider
	cfg      *Config

	// Concurrency slots. Holding a token = one in-flight call.
	sem chan struct{}

	// Rolling-window dispatch timestamps, oldest first.
	mu         sync.Mutex
	timestamps []time.Time

	// Dedup cache: in-flight and recently completed calls by key.
	dedupMu sync.Mutex
	dedup   map[string]*dedupEntry
}

// dedupEntry is a single coalesced call. done is closed when the underlying
// call finishes; result/err are valid afterwards.
type dedupEntry struct {
	done      chan struct{}
	result    *tts.AudioResult
	err       error
	expiresAt time.Time
}

// New creates a dispatch queue in front of the given provider.
func New(provider tts.Provider, opts ...Option) *Queue {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Queue{
		provider: provider,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		dedup:    make(map[string]*dedupEntry),
	}
}

// Dispatch performs one synthesis call under the queue's limits.
//
// Rate-limit-class errors are retried on the backoff schedule up to maxRetries
// times; other errors get one immediate retry. The call blocks while waiting
// for a concurrency slot or a rate-limit slot, honoring ctx throughout.
func (q *Queue) Dispatch(ctx context.Context, req Request, maxRetries int) (*tts.AudioResult, error) {
	if req.DedupKey == "" {
		return q.dispatch(ctx, req, maxRetries)
	}

	entry, leader := q.claimDedup(req.DedupKey)
	if !leader {
		// Another caller owns the underlying call; wait for its outcome.
		select {
		case <-entry.done:
			return entry.result, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result, err := q.dispatch(ctx, req, maxRetries)
	entry.result = result
	entry.err = err
	close(entry.done)
	return result, err
}

// dispatch runs the slot acquisition and retry loop for one request.
func (q *Queue) dispatch(ctx context.Context, req Request, maxRetries int) (*tts.AudioResult, error) {
	// Concurrency slot. Blocks while activeCount == MaxConcurrent.
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-q.sem }()

	var (
		rateRetries      int
		immediateRetried bool
		lastErr          error
	)

	for {
		if err := q.acquireRateSlot(ctx); err != nil {
			return nil, err
		}

		result, err := q.provider.Synthesize(ctx, req.Text, req.Profile)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if tts.IsRateLimitError(err) {
			if rateRetries >= maxRetries {
				q.cfg.Logger.Warn("dispatch retries exhausted",
					"session", req.SessionID,
					"attempts", rateRetries+1,
				)
				return nil, errors.Join(ErrRetriesExhausted, lastErr)
			}
			q.cfg.Logger.Debug("rate limited, backing off",
				"session", req.SessionID,
				"attempt", rateRetries+1,
				"delay", q.cfg.Policy.Delay(rateRetries),
			)
			if err := q.cfg.Policy.Wait(ctx, rateRetries); err != nil {
				return nil, err
			}
			rateRetries++
			continue
		}

		// Non-retryable class: one immediate retry, then fail.
		if immediateRetried {
			return nil, lastErr
		}
		immediateRetried = true
	}
}

// acquireRateSlot blocks until a rolling-window slot is free, then records
// the dispatch timestamp.
func (q *Queue) acquireRateSlot(ctx context.Context) error {
	for {
		q.mu.Lock()
		now := time.Now()
		q.evictLocked(now)

		if len(q.timestamps) < q.cfg.MaxPerWindow {
			q.timestamps = append(q.timestamps, now)
			q.mu.Unlock()
			return nil
		}

		// Window full: sleep until the oldest entry ages out.
		wait := q.timestamps[0].Add(q.cfg.Window).Sub(now)
		q.mu.Unlock()

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// evictLocked drops timestamps older than the window. Caller holds q.mu.
func (q *Queue) evictLocked(now time.Time) {
	cutoff := now.Add(-q.cfg.Window)
	i := 0
	for i < len(q.timestamps) && !q.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		q.timestamps = append(q.timestamps[:0], q.timestamps[i:]...)
	}
}

// claimDedup returns the entry for key and whether the caller is the leader
// responsible for the underlying call.
func (q *Queue) claimDedup(key string) (*dedupEntry, bool) {
	q.dedupMu.Lock()
	defer q.dedupMu.Unlock()

	now := time.Now()
	if entry, ok := q.dedup[key]; ok && now.Before(entry.expiresAt) {
		return entry, false
	}

	entry := &dedupEntry{
		done:      make(chan struct{}),
		expiresAt: now.Add(q.cfg.DedupWindow),
	}
	q.dedup[key] = entry

	// Opportunistic sweep so the map does not grow without bound.
	for k, e := range q.dedup {
		if now.After(e.expiresAt) {
			select {
			case <-e.done:
				delete(q.dedup, k)
			default:
				// Still in flight past its window; leave it.
			}
		}
	}

	return entry, true
}

// Active returns the number of in-flight synthesis calls.
func (q *Queue) Active() int {
	return len(q.sem)
}

// WindowCount returns the number of dispatches inside the current window.
func (q *Queue) WindowCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evictLocked(time.Now())
	return len(q.timestamps)
}
