package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByTask(ctx context.Context, taskID string) ([]Event, error)
}

// Service records the dispatch trail of scheduled tasks.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TaskID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// ListByTask returns a task's events, oldest first.
func (s *Service) ListByTask(ctx context.Context, taskID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if taskID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByTask(ctx, taskID)
}

func (s *Service) LogScheduled(ctx context.Context, taskID, actor, message string) error {
	return s.Append(ctx, Event{TaskID: taskID, Type: EventTypeTaskScheduled, Actor: actor, Message: message})
}

func (s *Service) LogClaimed(ctx context.Context, taskID string) error {
	return s.Append(ctx, Event{TaskID: taskID, Type: EventTypeTaskClaimed})
}

func (s *Service) LogCallPlaced(ctx context.Context, taskID, callSID string) error {
	return s.Append(ctx, Event{TaskID: taskID, Type: EventTypeCallPlaced, CallSID: callSID})
}

func (s *Service) LogCallFailed(ctx context.Context, taskID, message string) error {
	return s.Append(ctx, Event{TaskID: taskID, Type: EventTypeCallFailed, Message: message})
}

// LogRetried records a manual retry on the stuck task, pointing at its replacement.
func (s *Service) LogRetried(ctx context.Context, taskID, newTaskID, actor string) error {
	return s.Append(ctx, Event{TaskID: taskID, Type: EventTypeTaskRetried, Actor: actor, Message: "replaced by " + newTaskID})
}
