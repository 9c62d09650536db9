package audit

import "time"

// Event is an immutable, append-only record of something that happened to a scheduled task.
//
// Invariants:
// - Events are never updated or deleted.
// - task_id is required.
// - Recording is best-effort; dispatch never blocks or fails on audit errors.
//
// Storage: table dispatch_events, INSERT-only from the application.
type Event struct {
	ID     string `json:"id" db:"id"`
	TaskID string `json:"task_id" db:"task_id"`

	Type EventType `json:"type" db:"type"`

	CallSID string `json:"call_sid,omitempty" db:"call_sid"`

	// Actor is the authenticated admin API subject, empty for the dispatcher.
	Actor string `json:"actor,omitempty" db:"actor"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTaskScheduled EventType = "task_scheduled"
	EventTypeTaskClaimed   EventType = "task_claimed"
	EventTypeCallPlaced    EventType = "call_placed"
	EventTypeCallFailed    EventType = "call_failed"
	EventTypeTaskRetried   EventType = "task_retried"
)
