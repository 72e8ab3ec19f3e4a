package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process activity store for local/dev use.
type InMemoryStore struct {
	mu         sync.RWMutex
	activities map[string]Activity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{activities: make(map[string]Activity)}
}

func (s *InMemoryStore) Create(_ context.Context, a Activity) (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Status = StatusPending
	a.RequiresApproval = true
	s.activities[a.ID] = a
	return cloneActivity(a), nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	if !ok {
		return Activity{}, ErrActivityNotFound
	}
	return cloneActivity(a), nil
}

func (s *InMemoryStore) List(_ context.Context, workspaceID, statusFilter string) ([]Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Activity, 0)
	for _, a := range s.activities {
		if a.WorkspaceID != workspaceID {
			continue
		}
		if statusFilter != "" && a.Status != statusFilter {
			continue
		}
		out = append(out, cloneActivity(a))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Decide(_ context.Context, id, decision, decidedBy, reason string, at time.Time) (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return Activity{}, ErrActivityNotFound
	}
	if a.Status != StatusPending {
		return Activity{}, fmt.Errorf("%w: decide is only valid in pending, activity is %s", ErrInvalidTransition, a.Status)
	}

	switch decision {
	case DecisionApprove:
		a.Status = StatusApproved
	case DecisionReject:
		a.Status = StatusRejected
		a.ExecutionNote = reason
	default:
		return Activity{}, fmt.Errorf("unknown decision %q", decision)
	}
	a.DecidedBy = decidedBy
	decidedAt := at.UTC()
	a.DecidedAt = &decidedAt
	s.activities[id] = a
	return cloneActivity(a), nil
}

func (s *InMemoryStore) MarkExecuted(_ context.Context, id, outcome, note string) (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return Activity{}, ErrActivityNotFound
	}
	if a.Status != StatusApproved {
		return Activity{}, fmt.Errorf("%w: execution outcome is only valid in approved, activity is %s", ErrInvalidTransition, a.Status)
	}
	if outcome != StatusCompleted && outcome != StatusFailed {
		return Activity{}, fmt.Errorf("unknown execution outcome %q", outcome)
	}
	a.Status = outcome
	if note != "" {
		a.ExecutionNote = note
	}
	s.activities[id] = a
	return cloneActivity(a), nil
}

func (s *InMemoryStore) CountPending(_ context.Context, workspaceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.activities {
		if a.Status != StatusPending {
			continue
		}
		if workspaceID == "" || a.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneActivity(a Activity) Activity {
	cp := a
	if a.WorkerPayload != nil {
		cp.WorkerPayload = make(map[string]any, len(a.WorkerPayload))
		for k, v := range a.WorkerPayload {
			cp.WorkerPayload[k] = v
		}
	}
	if a.DecidedAt != nil {
		at := *a.DecidedAt
		cp.DecidedAt = &at
	}
	return cp
}
