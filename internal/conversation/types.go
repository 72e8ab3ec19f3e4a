package conversation

import (
	"context"
	"errors"
	"time"
)

// Session statuses. A session stays active until the orchestrator closes it
// or parks it behind a pending approval.
const (
	SessionActive        = "active"
	SessionCompleted     = "completed"
	SessionNeedsApproval = "needs_approval"
)

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

var (
	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnavailable wraps backend failures so callers can map them to a
	// single storage error class.
	ErrUnavailable = errors.New("conversation store unavailable")
)

// Session is one topical exchange between a workspace user and a worker.
type Session struct {
	ID             string    `json:"session_id"`
	WorkspaceID    string    `json:"workspace_id"`
	WorkerKind     string    `json:"worker_kind"`
	Topic          string    `json:"topic"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	MessageCount   int       `json:"message_count"`
}

// Message is a single user or agent turn inside a session.
type Message struct {
	ID        string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists sessions and their append-only message log.
type Store interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	// LatestActiveSession returns the workspace's most recently active open
	// session, or ErrSessionNotFound when the workspace has none. A session
	// parked behind a pending approval is still open: follow-up questions in
	// the same window continue it.
	LatestActiveSession(ctx context.Context, workspaceID string) (Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	// UpdateSessionRouting records which specialist most recently handled
	// the session and the classifier's topic label for it.
	UpdateSessionRouting(ctx context.Context, id, workerKind, topic string) error
	UpdateSessionStatus(ctx context.Context, id, status string) error
	// AppendMessage records a turn and bumps the owning session's
	// message_count and last_activity_at together.
	AppendMessage(ctx context.Context, m Message) (Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	// RecentMessages returns the last limit messages in chronological order.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	ListSessions(ctx context.Context, workspaceID string) ([]Session, error)
	Close() error
}
