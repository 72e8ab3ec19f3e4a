package approval

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Event types published to workspace subscribers.
const (
	EventActivityCreated   = "activity_created"
	EventActivityApproved  = "activity_approved"
	EventActivityRejected  = "activity_rejected"
	EventActivityCompleted = "activity_completed"
	EventActivityFailed    = "activity_failed"
)

// Event is one approval-queue change pushed to workspace subscribers.
type Event struct {
	Type     string    `json:"type"`
	Activity Activity  `json:"activity"`
	At       time.Time `json:"at"`
}

// PendingGauge receives the current pending-activity count. Satisfied by
// prometheus.Gauge; nil disables publishing.
type PendingGauge interface {
	Set(float64)
}

// Service wraps the Activity store with a per-workspace event bus so the
// approval queue can be watched live.
type Service struct {
	store Store
	gauge PendingGauge

	mu          sync.Mutex
	subscribers map[string]map[int]chan Event
	nextSubID   int

	now func() time.Time
}

func NewService(store Store, gauge PendingGauge) *Service {
	return &Service{
		store:       store,
		gauge:       gauge,
		subscribers: make(map[string]map[int]chan Event),
		now:         time.Now,
	}
}

// Subscribe registers a listener for a workspace's activity events. The
// returned cancel func must be called to release the channel.
func (s *Service) Subscribe(workspaceID string) (<-chan Event, func()) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 64)
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	if _, ok := s.subscribers[workspaceID]; !ok {
		s.subscribers[workspaceID] = make(map[int]chan Event)
	}
	s.subscribers[workspaceID][id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[workspaceID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(s.subscribers, workspaceID)
		}
	}
}

// Create records a new pending Activity and announces it.
func (s *Service) Create(ctx context.Context, a Activity) (Activity, error) {
	created, err := s.store.Create(ctx, a)
	if err != nil {
		return Activity{}, err
	}
	s.publish(created.WorkspaceID, Event{Type: EventActivityCreated, Activity: created, At: s.now().UTC()})
	s.SyncPendingGauge(ctx)
	return created, nil
}

// Decide applies a human approve/reject to a pending Activity. The store's
// compare-and-swap guarantees only the first decision lands.
func (s *Service) Decide(ctx context.Context, id, decision, decidedBy, reason string) (Activity, error) {
	decided, err := s.store.Decide(ctx, id, decision, decidedBy, reason, s.now().UTC())
	if err != nil {
		return Activity{}, err
	}

	eventType := EventActivityApproved
	if decided.Status == StatusRejected {
		eventType = EventActivityRejected
	}
	s.publish(decided.WorkspaceID, Event{Type: eventType, Activity: decided, At: s.now().UTC()})
	s.SyncPendingGauge(ctx)
	return decided, nil
}

// MarkExecuted records the execution step's outcome for an approved Activity.
func (s *Service) MarkExecuted(ctx context.Context, id, outcome, note string) (Activity, error) {
	updated, err := s.store.MarkExecuted(ctx, id, outcome, note)
	if err != nil {
		return Activity{}, err
	}

	eventType := EventActivityCompleted
	if updated.Status == StatusFailed {
		eventType = EventActivityFailed
	}
	s.publish(updated.WorkspaceID, Event{Type: eventType, Activity: updated, At: s.now().UTC()})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (Activity, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, workspaceID, statusFilter string) ([]Activity, error) {
	return s.store.List(ctx, workspaceID, statusFilter)
}

func (s *Service) CountPending(ctx context.Context, workspaceID string) (int, error) {
	return s.store.CountPending(ctx, workspaceID)
}

// SyncPendingGauge recounts pending activities across all workspaces and
// publishes the result. Runs after every create and decision, and once at
// startup so the gauge is correct again after a restart.
func (s *Service) SyncPendingGauge(ctx context.Context) {
	if s.gauge == nil {
		return
	}
	n, err := s.store.CountPending(ctx, "")
	if err != nil {
		log.Printf("approval: counting pending activities: %v", err)
		return
	}
	s.gauge.Set(float64(n))
}

func (s *Service) publish(workspaceID string, evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subscribers[workspaceID]
	if len(subs) == 0 {
		return
	}
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
