package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/antoniostano/casepilot/internal/approval"
	"github.com/antoniostano/casepilot/internal/conversation"
	"github.com/antoniostano/casepilot/internal/dispatch"
	"github.com/antoniostano/casepilot/internal/genai"
	"github.com/antoniostano/casepilot/internal/intent"
	"github.com/antoniostano/casepilot/internal/observability"
	"github.com/antoniostano/casepilot/internal/session"
)

// Dispatcher submits one task to a worker and returns its normalized result.
type Dispatcher interface {
	Submit(ctx context.Context, workerURL string, req dispatch.Request) (dispatch.Result, error)
}

// Request is one inbound user message.
type Request struct {
	WorkspaceID string
	Query       string
	SessionID   string
}

// HandleResult is the caller-facing outcome of one handled request.
type HandleResult struct {
	SessionID        string         `json:"session_id"`
	IsContinuation   bool           `json:"is_continuation"`
	Topic            string         `json:"topic"`
	ActionKind       string         `json:"action_kind"`
	RequiresApproval bool           `json:"requires_approval"`
	ActivityID       string         `json:"activity_id,omitempty"`
	NeedsInput       bool           `json:"needs_input"`
	ResultText       string         `json:"result_text"`
	ResultStructured map[string]any `json:"result_structured,omitempty"`
}

// Orchestrator runs the full pipeline for one user message: session
// resolution, classification, dispatch, approval gating, and audit logging.
type Orchestrator struct {
	sessions      *session.Manager
	store         conversation.Store
	router        *intent.Router
	dispatcher    Dispatcher
	backend       genai.Client
	approvals     *approval.Service
	metrics       *observability.Metrics
	contextWindow int
}

func New(
	sessions *session.Manager,
	store conversation.Store,
	router *intent.Router,
	dispatcher Dispatcher,
	backend genai.Client,
	approvals *approval.Service,
	metrics *observability.Metrics,
	contextWindow int,
) *Orchestrator {
	if contextWindow <= 0 {
		contextWindow = 5
	}
	return &Orchestrator{
		sessions:      sessions,
		store:         store,
		router:        router,
		dispatcher:    dispatcher,
		backend:       backend,
		approvals:     approvals,
		metrics:       metrics,
		contextWindow: contextWindow,
	}
}

// Handle processes one user message end to end.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (HandleResult, error) {
	handle, err := o.sessions.Resolve(ctx, req.WorkspaceID, req.SessionID)
	if err != nil {
		o.metrics.StorageErrors.WithLabelValues("resolve_session").Inc()
		return HandleResult{}, err
	}

	var contextWindow []conversation.Message
	if handle.Session.MessageCount > 0 {
		contextWindow, err = o.store.RecentMessages(ctx, handle.Session.ID, o.contextWindow)
		if err != nil {
			o.metrics.StorageErrors.WithLabelValues("recent_messages").Inc()
			return HandleResult{}, err
		}
	}

	c := o.router.Classify(ctx, contextWindow, req.Query)
	if c.Degraded {
		o.metrics.ClassifierFallbacks.Inc()
		log.Printf("orchestrator: classification degraded, using %s fallback", c.ActionKind)
	}
	o.metrics.RequestsHandled.WithLabelValues(c.ActionKind).Inc()

	reused := true
	if handle.Candidate && !c.IsContinuation {
		// The classifier says this is a new topic. Abandon the recency
		// candidate and give the request a fresh session; the old one
		// simply ages out of its window.
		handle, err = o.sessions.StartNew(ctx, req.WorkspaceID, c.ActionKind, c.Topic)
		if err != nil {
			o.metrics.StorageErrors.WithLabelValues("start_session").Inc()
			return HandleResult{}, err
		}
		reused = false
	}
	if handle.Session.MessageCount == 0 {
		reused = false
	}

	if err := o.store.UpdateSessionRouting(ctx, handle.Session.ID, c.ActionKind, c.Topic); err != nil {
		o.metrics.StorageErrors.WithLabelValues("update_routing").Inc()
		return HandleResult{}, err
	}
	o.metrics.SessionEvents.WithLabelValues(sessionEvent(reused)).Inc()

	if _, err := o.store.AppendMessage(ctx, conversation.Message{
		SessionID: handle.Session.ID,
		Role:      conversation.RoleUser,
		Content:   req.Query,
	}); err != nil {
		o.metrics.StorageErrors.WithLabelValues("append_user_message").Inc()
		return HandleResult{}, err
	}

	res, err := o.execute(ctx, handle.Session.ID, req, c)
	if err != nil {
		return HandleResult{}, err
	}
	if res.Degraded {
		o.metrics.EmptyWorkerReplies.Inc()
		log.Printf("orchestrator: empty reply from worker for %s, using sentinel", c.ActionKind)
	}

	if _, err := o.store.AppendMessage(ctx, conversation.Message{
		SessionID: handle.Session.ID,
		Role:      conversation.RoleAgent,
		Content:   res.Text,
	}); err != nil {
		o.metrics.StorageErrors.WithLabelValues("append_agent_message").Inc()
		return HandleResult{}, err
	}

	out := HandleResult{
		SessionID:        handle.Session.ID,
		IsContinuation:   reused,
		Topic:            c.Topic,
		ActionKind:       c.ActionKind,
		RequiresApproval: c.RequiresApproval,
		NeedsInput:       res.NeedsInput,
		ResultText:       res.Text,
		ResultStructured: res.Structured,
	}

	if c.RequiresApproval {
		act, err := o.approvals.Create(ctx, approval.Activity{
			WorkspaceID:   req.WorkspaceID,
			SessionID:     handle.Session.ID,
			WorkerKind:    c.ActionKind,
			ActionKind:    c.ActionKind,
			RequestText:   req.Query,
			WorkerPayload: approvalPayload(res),
		})
		if err != nil {
			o.metrics.StorageErrors.WithLabelValues("create_activity").Inc()
			return HandleResult{}, err
		}
		out.ActivityID = act.ID
		o.metrics.ActivityEvents.WithLabelValues(approval.EventActivityCreated).Inc()

		if err := o.store.UpdateSessionStatus(ctx, handle.Session.ID, conversation.SessionNeedsApproval); err != nil {
			o.metrics.StorageErrors.WithLabelValues("update_session_status").Inc()
			return HandleResult{}, err
		}
	}

	return out, nil
}

// execute routes the classified request to its worker, or answers directly
// through the generation backend when no worker claims the action kind.
func (o *Orchestrator) execute(ctx context.Context, sessionID string, req Request, c intent.Classification) (dispatch.Result, error) {
	w, ok := o.router.WorkerFor(c.ActionKind)
	if !ok {
		text, err := o.backend.Complete(ctx, directPrompt(req.Query))
		if err != nil {
			return dispatch.Result{}, fmt.Errorf("answer directly: %w", err)
		}
		return dispatch.Result{IsComplete: true, Text: text}, nil
	}

	start := time.Now()
	res, err := o.dispatcher.Submit(ctx, w.URL, dispatch.Request{
		Query:       req.Query,
		SessionID:   sessionID,
		WorkspaceID: req.WorkspaceID,
	})
	o.metrics.ObserveDispatchLatency(w.Name, time.Since(start))
	if err != nil {
		o.metrics.DispatchErrors.WithLabelValues(w.Name, dispatchErrorCode(err)).Inc()
		return dispatch.Result{}, err
	}
	return res, nil
}

// approvalPayload is what the human approver reviews. Workers that draft in
// plain text put the proposal in the reply message rather than a data part,
// so the normalized text rides along with any structured data.
func approvalPayload(res dispatch.Result) map[string]any {
	payload := make(map[string]any, len(res.Structured)+1)
	for k, v := range res.Structured {
		payload[k] = v
	}
	if res.Text != "" {
		payload["agent_response"] = res.Text
	}
	return payload
}

func sessionEvent(reused bool) string {
	if reused {
		return "continued"
	}
	return "created"
}

func dispatchErrorCode(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrWorkerTaskFailed):
		return "task_failed"
	case errors.Is(err, dispatch.ErrWorkerUnreachable):
		return "unreachable"
	default:
		return "other"
	}
}

func directPrompt(query string) string {
	return "You are a legal case assistant. Answer the request below concisely.\n\nRequest: " + query
}
