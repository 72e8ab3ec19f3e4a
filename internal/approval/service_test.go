package approval

import (
	"context"
	"testing"
	"time"
)

func TestServicePublishesLifecycleEvents(t *testing.T) {
	svc := NewService(NewInMemoryStore(), nil)
	ctx := context.Background()

	ch, cancel := svc.Subscribe("case-1")
	defer cancel()

	created, err := svc.Create(ctx, Activity{WorkspaceID: "case-1", ActionKind: "draft_communication"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	evt := waitEvent(t, ch)
	if evt.Type != EventActivityCreated || evt.Activity.ID != created.ID {
		t.Fatalf("event = %+v, want activity_created for %s", evt, created.ID)
	}

	if _, err := svc.Decide(ctx, created.ID, DecisionApprove, "attorney@firm", ""); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	evt = waitEvent(t, ch)
	if evt.Type != EventActivityApproved {
		t.Fatalf("event = %q, want activity_approved", evt.Type)
	}

	if _, err := svc.MarkExecuted(ctx, created.ID, StatusFailed, "smtp bounce"); err != nil {
		t.Fatalf("MarkExecuted() error = %v", err)
	}
	evt = waitEvent(t, ch)
	if evt.Type != EventActivityFailed {
		t.Fatalf("event = %q, want activity_failed", evt.Type)
	}
}

func TestServiceSubscribeOtherWorkspaceSeesNothing(t *testing.T) {
	svc := NewService(NewInMemoryStore(), nil)

	ch, cancel := svc.Subscribe("case-other")
	defer cancel()

	if _, err := svc.Create(context.Background(), Activity{WorkspaceID: "case-1", ActionKind: "schedule_event"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %+v on other workspace", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

type gaugeRecorder struct {
	v   float64
	set bool
}

func (g *gaugeRecorder) Set(v float64) {
	g.v = v
	g.set = true
}

func TestServiceKeepsPendingGaugeInStepWithStore(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	// Pending rows that predate this process, as after a restart.
	if _, err := store.Create(ctx, Activity{WorkspaceID: "case-1", ActionKind: "draft_communication"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	gauge := &gaugeRecorder{}
	svc := NewService(store, gauge)
	svc.SyncPendingGauge(ctx)
	if !gauge.set || gauge.v != 1 {
		t.Fatalf("gauge after startup sync = %v, want 1", gauge.v)
	}

	second, err := svc.Create(ctx, Activity{WorkspaceID: "case-2", ActionKind: "schedule_event"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if gauge.v != 2 {
		t.Fatalf("gauge after create = %v, want 2 across workspaces", gauge.v)
	}

	if _, err := svc.Decide(ctx, second.ID, DecisionReject, "attorney@firm", "wrong time"); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if gauge.v != 1 {
		t.Fatalf("gauge after decision = %v, want 1", gauge.v)
	}
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}
