package dispatch

import "errors"

// Task lifecycle states reported by workers.
const (
	StateSubmitted     = "submitted"
	StateWorking       = "working"
	StateInputRequired = "input_required"
	StateCompleted     = "completed"
	StateFailed        = "failed"
)

// Sentinel text used when a completed or input-required task carried no
// usable text anywhere. It marks a degraded reply, not a silent success.
const SentinelText = "Task submitted successfully"

var (
	// ErrWorkerUnreachable means the dispatch timed out or the connection
	// failed. Never retried: a retry could double-execute a side effect.
	ErrWorkerUnreachable = errors.New("worker unreachable")
	// ErrWorkerTaskFailed means the worker explicitly reported failure.
	ErrWorkerTaskFailed = errors.New("worker task failed")
)

// Part is one piece of a message or artifact, either text or structured data.
type Part struct {
	Kind string         `json:"kind"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Message is the parts bundle exchanged with workers.
type Message struct {
	Role      string         `json:"role"`
	Parts     []Part         `json:"parts"`
	ContextID string         `json:"context_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskStatus wraps the optional immediate reply attached to a task.
type TaskStatus struct {
	Message *Message `json:"message,omitempty"`
}

// Artifact is an output bundle produced once a task completes.
type Artifact struct {
	Name  string `json:"name,omitempty"`
	Parts []Part `json:"parts"`
}

// TaskReply is a worker's view of one dispatched task. The reply shape
// varies by state and by whether the worker answered through the status
// message or through artifacts; Extract flattens both.
type TaskReply struct {
	TaskID    string     `json:"task_id"`
	State     string     `json:"state"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Result is the flat normalized outcome handed back to the orchestrator.
type Result struct {
	TaskID     string
	IsComplete bool
	NeedsInput bool
	Text       string
	Structured map[string]any
	// Degraded is set when the sentinel text replaced an empty reply.
	Degraded bool
}

type submitEnvelope struct {
	Method string       `json:"method"`
	Params submitParams `json:"params"`
}

type submitParams struct {
	Message Message `json:"message"`
}
