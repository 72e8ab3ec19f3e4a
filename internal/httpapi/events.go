package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleWorkspaceWS streams approval activity events for one workspace.
// The connection is write-only; inbound frames are drained solely to
// detect the peer closing.
func (s *Server) handleWorkspaceWS(w http.ResponseWriter, r *http.Request) {
	workspaceID := strings.TrimSpace(chi.URLParam(r, "id"))
	if workspaceID == "" {
		respondError(w, http.StatusBadRequest, "missing_workspace_id", "workspace id is required")
		return
	}

	events, unsubscribe := s.approvals.Subscribe(workspaceID)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.WSMessages.WithLabelValues("outbound", "connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				cancel()
				return
			}
			s.metrics.WSMessages.WithLabelValues("outbound", evt.Type).Inc()
		}
	}
}
