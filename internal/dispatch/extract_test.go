package dispatch

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractStatusMessageText(t *testing.T) {
	reply := TaskReply{
		TaskID: "t1",
		State:  StateCompleted,
		Status: TaskStatus{Message: &Message{
			Role: "agent",
			Parts: []Part{
				{Kind: "text", Text: "Draft ready."},
				{Kind: "text", Text: "Please review."},
			},
		}},
	}

	res, err := Extract(reply)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !res.IsComplete || res.NeedsInput {
		t.Fatalf("flags = complete=%v needsInput=%v, want complete only", res.IsComplete, res.NeedsInput)
	}
	if res.Text != "Draft ready.\nPlease review." {
		t.Fatalf("Text = %q", res.Text)
	}
	if res.Degraded {
		t.Fatalf("text-bearing reply must not be degraded")
	}
}

func TestExtractArtifactOnlyText(t *testing.T) {
	reply := TaskReply{
		TaskID: "t2",
		State:  StateCompleted,
		Artifacts: []Artifact{
			{Name: "draft", Parts: []Part{{Kind: "text", Text: "Dear client,"}}},
		},
	}

	res, err := Extract(reply)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != "Dear client," {
		t.Fatalf("Text = %q, want artifact text, not the sentinel", res.Text)
	}
}

func TestExtractMessageTextPrecedesArtifactText(t *testing.T) {
	reply := TaskReply{
		TaskID: "t3",
		State:  StateCompleted,
		Status: TaskStatus{Message: &Message{Parts: []Part{{Kind: "text", Text: "summary"}}}},
		Artifacts: []Artifact{
			{Parts: []Part{{Kind: "text", Text: "detail"}}},
		},
	}

	res, err := Extract(reply)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != "summary\ndetail" {
		t.Fatalf("Text = %q, want message text first", res.Text)
	}
}

func TestExtractFirstDataPartWins(t *testing.T) {
	reply := TaskReply{
		TaskID: "t4",
		State:  StateInputRequired,
		Status: TaskStatus{Message: &Message{Parts: []Part{
			{Kind: "text", Text: "need a date"},
			{Kind: "data", Data: map[string]any{"field": "event_date"}},
		}}},
		Artifacts: []Artifact{
			{Parts: []Part{{Kind: "data", Data: map[string]any{"field": "ignored"}}}},
		},
	}

	res, err := Extract(reply)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !res.NeedsInput || res.IsComplete {
		t.Fatalf("flags = complete=%v needsInput=%v, want needsInput only", res.IsComplete, res.NeedsInput)
	}
	if res.Structured["field"] != "event_date" {
		t.Fatalf("Structured = %v, want the message data part", res.Structured)
	}
}

func TestExtractEmptyCompletedFallsBackToSentinel(t *testing.T) {
	reply := TaskReply{TaskID: "t5", State: StateCompleted}

	res, err := Extract(reply)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != SentinelText {
		t.Fatalf("Text = %q, want sentinel", res.Text)
	}
	if !res.Degraded {
		t.Fatalf("sentinel fallback must be marked degraded")
	}
}

func TestExtractWorkingStateStaysEmpty(t *testing.T) {
	reply := TaskReply{TaskID: "t6", State: StateWorking}

	res, err := Extract(reply)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != "" || res.Degraded {
		t.Fatalf("working state must not get the sentinel, got %q", res.Text)
	}
}

func TestExtractFailedStateSurfacesErrorText(t *testing.T) {
	reply := TaskReply{
		TaskID: "t7",
		State:  StateFailed,
		Status: TaskStatus{Message: &Message{Parts: []Part{{Kind: "text", Text: "calendar backend rejected the slot"}}}},
	}

	_, err := Extract(reply)
	if !errors.Is(err, ErrWorkerTaskFailed) {
		t.Fatalf("Extract() error = %v, want ErrWorkerTaskFailed", err)
	}
	if !strings.Contains(err.Error(), "calendar backend rejected the slot") {
		t.Fatalf("error %q missing worker text", err)
	}
}
