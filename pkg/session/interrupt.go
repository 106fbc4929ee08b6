package session

import (
	"context"
	"log/slog"
)

// Manager drives the per-session barge-in state machine:
// Idle -> Speaking -> {Interrupted | Completed} -> Idle.
//
// Cancellation is cooperative. RequestInterrupt fires every tracked cancel
// handle and raises the interrupt flag; it cannot stop a call already inside
// an external service, so tasks must check the flag (or their context) before
// publishing a result and discard silently if it is set.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates an interrupt manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "session.interrupt")}
}

// BeginSpeaking transitions the session into Speaking and clears any stale
// interrupt flag. If the session is already Speaking, the previous reply is
// interrupted first: at most one speaking sequence exists per session. The
// returned generation token scopes Complete and Finish to this sequence.
func (m *Manager) BeginSpeaking(s *Session) uint64 {
	s.mu.Lock()
	if s.state == StateSpeaking {
		cancels := m.interruptLocked(s)
		s.mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}
		m.logger.Debug("superseded previous reply", "session", s.ID)
		s.mu.Lock()
	}
	s.state = StateSpeaking
	s.interruptRequested = false
	s.speakGen++
	gen := s.speakGen
	s.mu.Unlock()
	return gen
}

// RequestInterrupt handles a barge-in. It is only meaningful while Speaking;
// in any other state it is a no-op. Tracked background tasks are cancelled
// and any chunk results still pending delivery will be discarded by their
// owners when they observe the flag.
func (m *Manager) RequestInterrupt(s *Session) bool {
	s.mu.Lock()
	if s.state != StateSpeaking {
		s.mu.Unlock()
		return false
	}
	cancels := m.interruptLocked(s)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.logger.Info("interrupt requested", "session", s.ID, "cancelled_tasks", len(cancels))
	return true
}

// interruptLocked flips the session into Interrupted and drains the task
// set. Caller holds s.mu and must invoke the returned cancel funcs after
// releasing it.
func (m *Manager) interruptLocked(s *Session) []context.CancelFunc {
	s.state = StateInterrupted
	s.interruptRequested = true

	cancels := make([]context.CancelFunc, 0, len(s.tasks))
	for _, cancel := range s.tasks {
		cancels = append(cancels, cancel)
	}
	s.tasks = make(map[string]context.CancelFunc)
	return cancels
}

// Complete marks a normally finished reply. Only meaningful while the
// sequence identified by gen is still Speaking.
func (m *Manager) Complete(s *Session, gen uint64) {
	s.mu.Lock()
	if s.state == StateSpeaking && s.speakGen == gen {
		s.state = StateCompleted
	}
	s.mu.Unlock()
}

// Finish returns the session to Idle once the sequence identified by gen is
// fully settled. A stale generation is a no-op so a slow watcher never
// clobbers a newer run's state.
func (m *Manager) Finish(s *Session, gen uint64) {
	s.mu.Lock()
	if s.speakGen == gen {
		s.state = StateIdle
		s.interruptRequested = false
	}
	s.mu.Unlock()
}

// Clear resets the barge-in state, readying the session for the next
// utterance. Called on normal completion and after fallbacks alike so the
// session always returns to a consistent Idle.
func (m *Manager) Clear(s *Session) {
	s.mu.Lock()
	s.state = StateIdle
	s.interruptRequested = false
	s.mu.Unlock()
}
