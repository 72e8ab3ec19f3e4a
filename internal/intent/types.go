package intent

// Action kinds the classifier may resolve a request to. The enumeration is
// closed; anything else coming back from the backend is treated as
// unparseable.
const (
	ActionResearchInternal   = "research_internal"
	ActionResearchExternal   = "research_external"
	ActionDraftCommunication = "draft_communication"
	ActionScheduleEvent      = "schedule_event"
	ActionGeneralQuery       = "general_query"
)

// Classification is the router's judgment on one incoming request.
type Classification struct {
	IsContinuation   bool   `json:"is_continuation"`
	Topic            string `json:"topic"`
	ActionKind       string `json:"action_kind"`
	RequiresApproval bool   `json:"requires_approval"`

	// Degraded is set when the backend failed or returned something
	// unparseable and the conservative fallback was used instead.
	Degraded bool `json:"-"`
}

// Worker is a routing-table entry resolved from a capability descriptor.
// Worker is one routing-table entry built from a discovered capability card.
// RequiresApproval echoes the worker's own declaration; the action-kind
// allow-list stays authoritative for gating.
type Worker struct {
	Name             string
	URL              string
	RequiresApproval bool
}

// KnownAction reports whether kind belongs to the closed enumeration.
func KnownAction(kind string) bool {
	switch kind {
	case ActionResearchInternal, ActionResearchExternal, ActionDraftCommunication,
		ActionScheduleEvent, ActionGeneralQuery:
		return true
	}
	return false
}

// SideEffecting reports whether an action kind may touch the outside world.
// Only these kinds are ever approval-gated.
func SideEffecting(kind string) bool {
	return kind == ActionDraftCommunication || kind == ActionScheduleEvent
}
