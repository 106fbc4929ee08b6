package session_test

import (
	"context"
	"testing"

	"github.com/pippinlabs/go-pippin/pkg/session"
)

func TestRegistryGetOrCreate(t *testing.T) {
	registry := session.NewRegistry()

	a := registry.GetOrCreate("s1")
	b := registry.GetOrCreate("s1")
	if a != b {
		t.Error("expected the same session for the same ID")
	}
	if registry.GetOrCreate("s2") == a {
		t.Error("expected distinct sessions for distinct IDs")
	}
	if registry.Len() != 2 {
		t.Errorf("expected 2 sessions, got %d", registry.Len())
	}
	if registry.Get("missing") != nil {
		t.Error("expected nil for unknown ID")
	}
}

func TestRegistryRemoveCancelsTasks(t *testing.T) {
	registry := session.NewRegistry()
	s := registry.GetOrCreate("s1")

	ctx, cancel := context.WithCancel(context.Background())
	s.Track(cancel)

	registry.Remove("s1")

	select {
	case <-ctx.Done():
	default:
		t.Error("expected tracked task to be cancelled on removal")
	}
	if registry.Get("s1") != nil {
		t.Error("expected session gone after removal")
	}
}

func TestTrackUntrack(t *testing.T) {
	registry := session.NewRegistry()
	s := registry.GetOrCreate("s1")

	_, cancelA := context.WithCancel(context.Background())
	idA := s.Track(cancelA)
	_, cancelB := context.WithCancel(context.Background())
	idB := s.Track(cancelB)
	if idA == idB {
		t.Error("expected distinct task IDs")
	}
	if s.TaskCount() != 2 {
		t.Errorf("expected 2 tracked tasks, got %d", s.TaskCount())
	}

	s.Untrack(idA)
	if s.TaskCount() != 1 {
		t.Errorf("expected 1 tracked task, got %d", s.TaskCount())
	}
	cancelA()
	cancelB()
}
