package types

import "time"

type ActionKind string

const (
	ActionMarkExit     ActionKind = "mark_exit"
	ActionClearHistory ActionKind = "clear_history"
)

type Action struct {
	Kind    ActionKind `json:"kind"`
	EntryID string     `json:"entryId,omitempty"`
}

// PendingDecision is a destructive ledger action parked until the operator
// confirms or cancels it.
type PendingDecision struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RequestedAt time.Time `json:"requestedAt"`
}

type DecisionOutcome struct {
	DecisionID string    `json:"decisionId"`
	Action     Action    `json:"action"`
	Confirmed  bool      `json:"confirmed"`
	Applied    bool      `json:"applied"`
	Entry      *LogEntry `json:"entry,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt"`
}
