// Package session owns per-session conversational state: the registry, the
// barge-in state machine, and admission control.
//
// Every mutable session field lives behind the session's own lock, and only
// the operations in this package touch them. The registry is an
// arena-with-index: one concurrent-safe map of entries, each guarding itself,
// rather than one global lock around all session state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the barge-in state of a session.
type State int

const (
	// StateIdle means no reply is being produced or spoken.
	StateIdle State = iota

	// StateSpeaking means a reply is being produced or spoken.
	StateSpeaking

	// StateInterrupted means the current reply was cut off by a new utterance.
	StateInterrupted

	// StateCompleted means the reply finished normally and awaits Clear.
	StateCompleted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StateInterrupted:
		return "interrupted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Session is one user's conversational session.
type Session struct {
	// ID identifies the session. Immutable.
	ID string

	mu sync.Mutex

	state              State
	interruptRequested bool

	// speakGen counts speaking sequences. Deferred work holds the
	// generation it belongs to so a stale watcher cannot close out a
	// newer run's state.
	speakGen uint64

	// Cancellation handles for in-flight background work, keyed by task ID.
	tasks map[string]context.CancelFunc

	// Admission bookkeeping.
	interactionCount    int
	startTime           time.Time
	lastBreakSuggestion time.Time
	micLockedUntil      time.Time
}

// State returns the session's barge-in state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Speaking reports whether a reply is currently being produced or spoken.
func (s *Session) Speaking() bool {
	return s.State() == StateSpeaking
}

// InterruptRequested reports whether a barge-in cut off the current reply.
// Background tasks must check this before publishing a result.
func (s *Session) InterruptRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptRequested
}

// InteractionCount returns the number of admitted interactions.
func (s *Session) InteractionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interactionCount
}

// Track registers a cancel handle for a background task and returns its ID.
// The handle fires when an interrupt is requested.
func (s *Session) Track(cancel context.CancelFunc) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.tasks[id] = cancel
	s.mu.Unlock()
	return id
}

// Untrack removes a background task handle, normally after the task finishes.
func (s *Session) Untrack(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

// TaskCount returns the number of tracked background tasks.
func (s *Session) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Registry is the concurrent-safe session store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithRegistryClock replaces the registry's clock. Intended for tests.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for id, creating it on first use.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s = &Session{
		ID:        id,
		tasks:     make(map[string]context.CancelFunc),
		startTime: r.now(),
	}
	r.sessions[id] = s
	return s
}

// Get returns the session for id, or nil if none exists.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove deletes the session for id, cancelling any tracked tasks first.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if s == nil {
		return
	}
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.tasks))
	for _, cancel := range s.tasks {
		cancels = append(cancels, cancel)
	}
	s.tasks = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
