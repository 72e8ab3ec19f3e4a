package dispatch

import (
	"fmt"
	"strings"
)

// Extract flattens a worker's task reply into a Result.
//
// Text parts are concatenated in a fixed order, status message first and
// then every artifact in sequence. The structured payload is the first
// data part found in that same order. A failed task surfaces whatever
// error text the worker put in its status message.
func Extract(reply TaskReply) (Result, error) {
	if reply.State == StateFailed {
		text := collectText(reply.Status.Message, nil)
		if text == "" {
			return Result{}, fmt.Errorf("%w: task %s", ErrWorkerTaskFailed, reply.TaskID)
		}
		return Result{}, fmt.Errorf("%w: %s", ErrWorkerTaskFailed, text)
	}

	res := Result{
		TaskID:     reply.TaskID,
		IsComplete: reply.State == StateCompleted,
		NeedsInput: reply.State == StateInputRequired,
		Text:       collectText(reply.Status.Message, reply.Artifacts),
		Structured: firstData(reply.Status.Message, reply.Artifacts),
	}

	if res.Text == "" && (res.IsComplete || res.NeedsInput) {
		res.Text = SentinelText
		res.Degraded = true
	}
	return res, nil
}

func collectText(msg *Message, artifacts []Artifact) string {
	var parts []string
	if msg != nil {
		for _, p := range msg.Parts {
			if p.Kind == "text" && p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
	}
	for _, a := range artifacts {
		for _, p := range a.Parts {
			if p.Kind == "text" && p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func firstData(msg *Message, artifacts []Artifact) map[string]any {
	if msg != nil {
		for _, p := range msg.Parts {
			if p.Kind == "data" && p.Data != nil {
				return p.Data
			}
		}
	}
	for _, a := range artifacts {
		for _, p := range a.Parts {
			if p.Kind == "data" && p.Data != nil {
				return p.Data
			}
		}
	}
	return nil
}
