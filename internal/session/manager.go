package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antoniostano/casepilot/internal/conversation"
)

// Handle is the session a request was resolved to. Candidate marks a
// recency-based match that the intent router may still reject in favor of
// a fresh session.
type Handle struct {
	Session   conversation.Session
	Candidate bool
}

// Manager resolves incoming requests to sessions using the workspace's
// activity window.
type Manager struct {
	store  conversation.Store
	window time.Duration

	now func() time.Time
}

func NewManager(store conversation.Store, window time.Duration) *Manager {
	return &Manager{
		store:  store,
		window: window,
		now:    time.Now,
	}
}

// Resolve finds the session an incoming request belongs to.
//
// An explicit sessionID always wins. Otherwise the workspace's most recent
// active session is offered as a continuation candidate when it falls inside
// the activity window; the caller decides whether the new request actually
// continues it. Anything older gets a fresh session.
func (m *Manager) Resolve(ctx context.Context, workspaceID, sessionID string) (Handle, error) {
	now := m.now().UTC()

	if sessionID != "" {
		sess, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			return Handle{}, fmt.Errorf("resolve explicit session: %w", err)
		}
		if err := m.store.TouchSession(ctx, sess.ID, now); err != nil {
			return Handle{}, fmt.Errorf("touch session: %w", err)
		}
		sess.LastActivityAt = now
		return Handle{Session: sess}, nil
	}

	sess, err := m.store.LatestActiveSession(ctx, workspaceID)
	switch {
	case err == nil:
		if now.Sub(sess.LastActivityAt) <= m.window {
			return Handle{Session: sess, Candidate: true}, nil
		}
	case errors.Is(err, conversation.ErrSessionNotFound):
	default:
		return Handle{}, fmt.Errorf("latest active session: %w", err)
	}

	return m.StartNew(ctx, workspaceID, "", "")
}

// StartNew opens a fresh active session for the workspace.
func (m *Manager) StartNew(ctx context.Context, workspaceID, workerKind, topic string) (Handle, error) {
	now := m.now().UTC()
	sess, err := m.store.CreateSession(ctx, conversation.Session{
		WorkspaceID:    workspaceID,
		WorkerKind:     workerKind,
		Topic:          topic,
		Status:         conversation.SessionActive,
		CreatedAt:      now,
		LastActivityAt: now,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("create session: %w", err)
	}
	return Handle{Session: sess}, nil
}

// End marks a session completed. Ending an already completed session is a
// no-op.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	if err := m.store.UpdateSessionStatus(ctx, sessionID, conversation.SessionCompleted); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}
