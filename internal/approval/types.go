package approval

import (
	"context"
	"errors"
	"time"
)

// Activity statuses. pending may move to approved or rejected via a human
// decision; approved may later move to completed or failed once the
// execution step reports back. rejected, completed, and failed are terminal.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Decisions a human can make on a pending Activity.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

var (
	ErrActivityNotFound = errors.New("activity not found")
	// ErrInvalidTransition is returned when a decision or execution
	// outcome arrives for an Activity that is not in the required state.
	ErrInvalidTransition = errors.New("invalid activity transition")
)

// Activity is one proposed side-effecting action awaiting or having
// received human judgment.
type Activity struct {
	ID               string         `json:"activity_id"`
	WorkspaceID      string         `json:"workspace_id"`
	SessionID        string         `json:"session_id"`
	WorkerKind       string         `json:"worker_kind"`
	ActionKind       string         `json:"action_kind"`
	Status           string         `json:"status"`
	RequestText      string         `json:"request_text"`
	WorkerPayload    map[string]any `json:"worker_payload,omitempty"`
	RequiresApproval bool           `json:"requires_approval"`
	DecidedBy        string         `json:"decided_by,omitempty"`
	DecidedAt        *time.Time     `json:"decided_at,omitempty"`
	ExecutionNote    string         `json:"execution_note,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Terminal reports whether no further transition is allowed.
func (a Activity) Terminal() bool {
	switch a.Status {
	case StatusRejected, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Store persists Activities. Decide and MarkExecuted must be
// compare-and-swap operations so concurrent decisions cannot both win.
type Store interface {
	Create(ctx context.Context, a Activity) (Activity, error)
	Get(ctx context.Context, id string) (Activity, error)
	// List returns the workspace's Activities ordered by created_at
	// descending; statusFilter narrows by status when non-empty.
	List(ctx context.Context, workspaceID, statusFilter string) ([]Activity, error)
	// Decide moves a pending Activity to approved or rejected and sets
	// decided_by/decided_at exactly once. A non-pending Activity fails
	// with ErrInvalidTransition.
	Decide(ctx context.Context, id, decision, decidedBy, reason string, at time.Time) (Activity, error)
	// MarkExecuted moves an approved Activity to completed or failed.
	MarkExecuted(ctx context.Context, id, outcome, note string) (Activity, error)
	// CountPending reports how many activities await a decision. An empty
	// workspaceID counts across all workspaces.
	CountPending(ctx context.Context, workspaceID string) (int, error)
	Close() error
}
