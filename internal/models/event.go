package models

import "time"

// WorkflowEvent is published after every successful store mutation of a scholar record.
type WorkflowEvent struct {
	Operation string       `json:"operation"`
	Table     ScholarTable `json:"table"`
	ScholarID string       `json:"scholarId"`
	ActorID   string       `json:"actorId"`
	Record    *Scholar     `json:"record,omitempty"`
	Previous  *Scholar     `json:"-"`
	At        time.Time    `json:"at"`
}
