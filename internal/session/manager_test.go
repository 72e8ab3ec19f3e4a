package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antoniostano/casepilot/internal/conversation"
)

func newTestManager(t *testing.T, window time.Duration, now time.Time) (*Manager, conversation.Store) {
	t.Helper()
	store := conversation.NewInMemoryStore()
	m := NewManager(store, window)
	m.now = func() time.Time { return now }
	return m, store
}

func TestResolveExplicitSessionID(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, store := newTestManager(t, 30*time.Minute, now)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, conversation.Session{
		WorkspaceID:    "case-1",
		WorkerKind:     "research_internal",
		LastActivityAt: now.Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	h, err := m.Resolve(ctx, "case-1", sess.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if h.Session.ID != sess.ID {
		t.Fatalf("Resolve() session = %s, want %s", h.Session.ID, sess.ID)
	}
	if h.Candidate {
		t.Fatalf("explicit session resolution must not be a candidate")
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if !got.LastActivityAt.Equal(now) {
		t.Fatalf("LastActivityAt = %v, want touched to %v", got.LastActivityAt, now)
	}
}

func TestResolveUnknownExplicitSessionID(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, _ := newTestManager(t, 30*time.Minute, now)

	_, err := m.Resolve(context.Background(), "case-1", "nope")
	if !errors.Is(err, conversation.ErrSessionNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrSessionNotFound", err)
	}
}

func TestResolveRecentSessionIsCandidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, store := newTestManager(t, 30*time.Minute, now)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, conversation.Session{
		WorkspaceID:    "case-1",
		WorkerKind:     "draft_communication",
		LastActivityAt: now.Add(-10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	h, err := m.Resolve(ctx, "case-1", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if h.Session.ID != sess.ID {
		t.Fatalf("Resolve() session = %s, want recent session %s", h.Session.ID, sess.ID)
	}
	if !h.Candidate {
		t.Fatalf("recent session must be offered as a candidate")
	}
}

func TestResolveStaleSessionStartsFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, store := newTestManager(t, 30*time.Minute, now)
	ctx := context.Background()

	stale, err := store.CreateSession(ctx, conversation.Session{
		WorkspaceID:    "case-1",
		WorkerKind:     "schedule_event",
		LastActivityAt: now.Add(-31 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	h, err := m.Resolve(ctx, "case-1", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if h.Session.ID == stale.ID {
		t.Fatalf("Resolve() reused a session outside the activity window")
	}
	if h.Candidate {
		t.Fatalf("fresh session must not be a candidate")
	}
	if h.Session.Status != conversation.SessionActive {
		t.Fatalf("fresh session status = %q, want active", h.Session.Status)
	}
}

func TestResolveExactWindowBoundaryIsCandidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, store := newTestManager(t, 30*time.Minute, now)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, conversation.Session{
		WorkspaceID:    "case-1",
		WorkerKind:     "general_query",
		LastActivityAt: now.Add(-30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	h, err := m.Resolve(ctx, "case-1", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if h.Session.ID != sess.ID || !h.Candidate {
		t.Fatalf("session exactly at the window boundary must still be a candidate")
	}
}

func TestResolveEmptyWorkspaceStartsFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, _ := newTestManager(t, 30*time.Minute, now)

	h, err := m.Resolve(context.Background(), "case-new", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if h.Session.WorkspaceID != "case-new" {
		t.Fatalf("WorkspaceID = %q, want case-new", h.Session.WorkspaceID)
	}
	if h.Candidate {
		t.Fatalf("fresh session must not be a candidate")
	}
}
