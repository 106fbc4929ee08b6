package memory

import (
	"context"
	"sync"
)

// Stub is an in-process Store for tests and local runs.
type Stub struct {
	mu        sync.RWMutex
	summaries map[string]string

	// Delay hook for latency tests; called before each read if set.
	BeforeRead func(ctx context.Context) error
}

// NewStub creates an empty in-process store.
func NewStub() *Stub {
	return &Stub{summaries: make(map[string]string)}
}

// SetSummary stores a preference summary for a user.
func (s *Stub) SetSummary(userID, summary string) {
	s.mu.Lock()
	s.summaries[userID] = summary
	s.mu.Unlock()
}

// RecentPreferences returns the stored summary, or "" if none.
func (s *Stub) RecentPreferences(ctx context.Context, userID string) (string, error) {
	if s.BeforeRead != nil {
		if err := s.BeforeRead(ctx); err != nil {
			return "", err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries[userID], nil
}

var _ Store = (*Stub)(nil)
