package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/casepilot/internal/approval"
	"github.com/antoniostano/casepilot/internal/config"
	"github.com/antoniostano/casepilot/internal/conversation"
	"github.com/antoniostano/casepilot/internal/dispatch"
	"github.com/antoniostano/casepilot/internal/observability"
	"github.com/antoniostano/casepilot/internal/orchestrator"
	"github.com/antoniostano/casepilot/internal/session"
)

// Orchestrator handles one inbound user message end to end.
type Orchestrator interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.HandleResult, error)
}

type Server struct {
	cfg          config.Config
	store        conversation.Store
	sessions     *session.Manager
	orchestrator Orchestrator
	approvals    *approval.Service
	metrics      *observability.Metrics
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, store conversation.Store, sessions *session.Manager, orch Orchestrator, approvals *approval.Service, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:          cfg,
		store:        store,
		sessions:     sessions,
		orchestrator: orch,
		approvals:    approvals,
		metrics:      metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from
				// the same origin, so another site cannot watch a case's
				// approval queue if the service is exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/workspaces/{id}/messages", s.handleMessage)
	r.Get("/v1/workspaces/{id}/sessions", s.handleListSessions)
	r.Get("/v1/workspaces/{id}/activities", s.handleListActivities)
	r.Get("/v1/workspaces/{id}/events", s.handleWorkspaceWS)
	r.Get("/v1/sessions/{id}/messages", s.handleListMessages)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Post("/v1/activities/{id}/approve", s.handleApprove)
	r.Post("/v1/activities/{id}/reject", s.handleReject)
	r.Post("/v1/activities/{id}/execution", s.handleExecution)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

type messageRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "id")

	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	res, err := s.orchestrator.Handle(r.Context(), orchestrator.Request{
		WorkspaceID: workspaceID,
		Query:       req.Query,
		SessionID:   strings.TrimSpace(req.SessionID),
	})
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.End(r.Context(), id); err != nil {
		s.respondPipelineError(w, err)
		return
	}
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "status": conversation.SessionCompleted})
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !validActivityStatus(status) {
		respondError(w, http.StatusBadRequest, "invalid_request", "unknown status filter")
		return
	}

	acts, err := s.approvals.List(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"activities": acts})
}

type decisionRequest struct {
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, approval.DecisionApprove)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, approval.DecisionReject)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, decision string) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.DecidedBy) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "decided_by is required")
		return
	}
	if decision == approval.DecisionReject && strings.TrimSpace(req.Reason) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "reason is required to reject")
		return
	}

	act, err := s.approvals.Decide(r.Context(), chi.URLParam(r, "id"), decision, req.DecidedBy, req.Reason)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	s.metrics.ActivityEvents.WithLabelValues("decided_" + act.Status).Inc()
	s.releaseSessionHold(r.Context(), act)
	respondJSON(w, http.StatusOK, act)
}

// releaseSessionHold flips a session back to active once its last pending
// Activity has been decided, so it can resume as a continuation candidate.
func (s *Server) releaseSessionHold(ctx context.Context, act approval.Activity) {
	if act.SessionID == "" {
		return
	}
	pending, err := s.approvals.List(ctx, act.WorkspaceID, approval.StatusPending)
	if err != nil {
		log.Printf("httpapi: listing pending activities for session %s: %v", act.SessionID, err)
		return
	}
	for _, p := range pending {
		if p.SessionID == act.SessionID {
			return
		}
	}
	sess, err := s.store.GetSession(ctx, act.SessionID)
	if err != nil || sess.Status != conversation.SessionNeedsApproval {
		return
	}
	if err := s.store.UpdateSessionStatus(ctx, act.SessionID, conversation.SessionActive); err != nil {
		log.Printf("httpapi: reopening session %s after decision: %v", act.SessionID, err)
	}
}

type executionRequest struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note,omitempty"`
}

func (s *Server) handleExecution(w http.ResponseWriter, r *http.Request) {
	var req executionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Outcome != approval.StatusCompleted && req.Outcome != approval.StatusFailed {
		respondError(w, http.StatusBadRequest, "invalid_request", "outcome must be completed or failed")
		return
	}

	act, err := s.approvals.MarkExecuted(r.Context(), chi.URLParam(r, "id"), req.Outcome, req.Note)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	s.metrics.ActivityEvents.WithLabelValues("executed_" + act.Status).Inc()
	respondJSON(w, http.StatusOK, act)
}

func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, approval.ErrActivityNotFound):
		respondError(w, http.StatusNotFound, "activity_not_found", err.Error())
	case errors.Is(err, approval.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, conversation.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	case errors.Is(err, dispatch.ErrWorkerTaskFailed):
		respondError(w, http.StatusBadGateway, "worker_task_failed", err.Error())
	case errors.Is(err, dispatch.ErrWorkerUnreachable):
		respondError(w, http.StatusBadGateway, "worker_unreachable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func validActivityStatus(status string) bool {
	switch status {
	case approval.StatusPending, approval.StatusApproved, approval.StatusRejected,
		approval.StatusCompleted, approval.StatusFailed:
		return true
	}
	return false
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
