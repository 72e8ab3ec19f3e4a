package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/casepilot/internal/conversation"
	"github.com/antoniostano/casepilot/internal/genai"
)

// Router classifies requests and maps action kinds to workers.
type Router struct {
	backend genai.Client
	table   map[string]Worker
}

func NewRouter(backend genai.Client, table map[string]Worker) *Router {
	if table == nil {
		table = make(map[string]Worker)
	}
	return &Router{backend: backend, table: table}
}

// WorkerFor returns the routing-table entry for an action kind, if any
// worker claimed it at discovery time.
func (r *Router) WorkerFor(kind string) (Worker, bool) {
	w, ok := r.table[kind]
	return w, ok
}

// Classify asks the generation backend for a structured judgment on the new
// query given the recent context. A failed or unparseable backend response
// degrades to general_query with no approval, never to a side-effecting kind.
func (r *Router) Classify(ctx context.Context, contextWindow []conversation.Message, query string) Classification {
	raw, err := r.backend.Complete(ctx, buildPrompt(contextWindow, query))
	if err != nil {
		return fallbackClassification()
	}

	c, err := parseClassification(raw)
	if err != nil {
		return fallbackClassification()
	}

	// Allow-list override: the backend's approval flag is advisory only.
	// Side-effecting kinds are always gated, everything else never is.
	c.RequiresApproval = SideEffecting(c.ActionKind)
	return c
}

func fallbackClassification() Classification {
	return Classification{
		IsContinuation:   false,
		ActionKind:       ActionGeneralQuery,
		RequiresApproval: false,
		Degraded:         true,
	}
}

func buildPrompt(contextWindow []conversation.Message, query string) string {
	var b strings.Builder
	b.WriteString("You route legal assistant requests. Classify the new request below.\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"is_continuation": bool, "topic": "short label", "action_kind": "...", "requires_approval": bool}` + "\n")
	b.WriteString("action_kind must be one of: research_internal, research_external, draft_communication, schedule_event, general_query.\n")
	b.WriteString("is_continuation is true only if the new request continues the conversation below.\n\n")

	if len(contextWindow) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range contextWindow {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "New request: %s\n", query)
	return b.String()
}
