package tasks

import (
	"context"
	"errors"
	"time"
)

// Status moves pending -> claimed -> processed and never backwards.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusProcessed Status = "processed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusProcessed:
		return true
	}
	return false
}

// Task is one scheduled outbound survey call.
type Task struct {
	ID          string     `json:"id"`
	PhoneNumber string     `json:"phoneNumber"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClaimedAt   *time.Time `json:"claimedAt,omitempty"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`

	// CallSID is the provider's id for the placed call, set when processed.
	CallSID string `json:"callSid,omitempty"`

	// LastError is the most recent dispatch failure. A failed task stays claimed.
	LastError string `json:"lastError,omitempty"`

	// RetryOf links a manual retry to the stuck task it replaces.
	RetryOf string `json:"retryOf,omitempty"`
}

type ListFilter struct {
	Status Status
	Limit  int
}

var (
	ErrNotFound          = errors.New("tasks: not found")
	ErrInvalidArgument   = errors.New("tasks: invalid argument")
	ErrMissingFields     = errors.New("tasks: missing fields")
	ErrInvalidTransition = errors.New("tasks: invalid status transition")
	ErrNotRetryable      = errors.New("tasks: task is not stuck")
	ErrAlreadyExists     = errors.New("tasks: already exists")
)

// Store is the task store gateway. Implementations must make TryClaim
// linearizable per task: at most one caller ever sees true.
type Store interface {
	Create(ctx context.Context, t Task) error
	Get(ctx context.Context, id string) (Task, error)
	List(ctx context.Context, f ListFilter) ([]Task, error)

	// QueryDue returns pending tasks with ScheduledAt <= now, oldest first.
	QueryDue(ctx context.Context, now time.Time, limit int) ([]Task, error)
	TryClaim(ctx context.Context, id string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, id, callSID string, now time.Time) error
	RecordFailure(ctx context.Context, id, msg string, now time.Time) error

	// ListScheduledBetween returns every task scheduled in [from, to), oldest first. It is unbounded.
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]Task, error)

	// ListStaleClaimed returns claimed tasks claimed before the cutoff.
	ListStaleClaimed(ctx context.Context, before time.Time, limit int) ([]Task, error)
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}
