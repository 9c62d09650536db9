package tasks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"survey-dialer/pkg/logger"

	"github.com/google/uuid"
)

// EventRecorder is the audit trail as seen by scheduling.
type EventRecorder interface {
	LogScheduled(ctx context.Context, taskID, actor, message string) error
	LogRetried(ctx context.Context, taskID, newTaskID, actor string) error
}

// Service owns task creation and manual remediation. Status transitions made by
// the dispatcher go straight to the Store.
type Service struct {
	store Store
	audit EventRecorder
	// clock is injectable for deterministic tests.
	clock func() time.Time
	newID func() string

	staleAfter time.Duration
}

func NewService(store Store, audit EventRecorder, staleAfter time.Duration) *Service {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &Service{store: store, audit: audit, clock: time.Now, newID: uuid.NewString, staleAfter: staleAfter}
}

type ScheduleRequest struct {
	Phone       string `json:"phone"`
	ScheduledAt string `json:"scheduledAt"`

	// Actor is the authenticated caller, recorded in the audit trail.
	Actor string `json:"-"`
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// Schedule stores a new pending task. Missing phone or time yields ErrMissingFields;
// an unreadable phone or time yields ErrInvalidArgument.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (Task, error) {
	phone := strings.TrimSpace(req.Phone)
	at := strings.TrimSpace(req.ScheduledAt)
	if phone == "" || at == "" {
		return Task{}, ErrMissingFields
	}
	phone = NormalizePhone(phone)
	if !phonePattern.MatchString(phone) {
		return Task{}, fmt.Errorf("%w: phone %q", ErrInvalidArgument, req.Phone)
	}
	scheduledAt, err := ParseScheduledAt(at)
	if err != nil {
		return Task{}, err
	}

	t := Task{
		ID:          s.newID(),
		PhoneNumber: phone,
		ScheduledAt: scheduledAt,
		Status:      StatusPending,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.store.Create(ctx, t); err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	s.record(ctx, s.auditScheduled(ctx, t.ID, req.Actor, "scheduled for "+t.ScheduledAt.Format(time.RFC3339)))
	return t, nil
}

// Retry replaces a stuck claimed task with a new pending one due now.
// The stuck task keeps its status; the new one points back via RetryOf.
func (s *Service) Retry(ctx context.Context, id, actor string) (Task, error) {
	orig, err := s.store.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if orig.Status != StatusClaimed {
		return Task{}, fmt.Errorf("%w: task is %s", ErrInvalidTransition, orig.Status)
	}
	now := s.clock().UTC()
	stale := orig.ClaimedAt != nil && now.Sub(*orig.ClaimedAt) >= s.staleAfter
	if orig.LastError == "" && !stale {
		return Task{}, ErrNotRetryable
	}

	t := Task{
		ID:          s.newID(),
		PhoneNumber: orig.PhoneNumber,
		ScheduledAt: now,
		Status:      StatusPending,
		CreatedAt:   now,
		RetryOf:     orig.ID,
	}
	if err := s.store.Create(ctx, t); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Task{}, fmt.Errorf("%w: task %s was already retried", ErrAlreadyExists, orig.ID)
		}
		return Task{}, fmt.Errorf("create retry: %w", err)
	}
	if s.audit != nil {
		s.record(ctx, s.audit.LogRetried(ctx, orig.ID, t.ID, actor))
		s.record(ctx, s.auditScheduled(ctx, t.ID, actor, "retry of "+orig.ID))
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, ErrInvalidArgument
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Task, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidArgument, f.Status)
	}
	return s.store.List(ctx, f)
}

func (s *Service) auditScheduled(ctx context.Context, taskID, actor, msg string) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.LogScheduled(ctx, taskID, actor, msg)
}

func (s *Service) record(ctx context.Context, err error) {
	if err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}

// NormalizePhone strips the separators people type into phone numbers.
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseScheduledAt accepts RFC 3339 and zone-less ISO 8601 date-times.
// Zone-less values are read as UTC. The result is always UTC.
func ParseScheduledAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: scheduledAt %q is not an ISO 8601 date-time", ErrInvalidArgument, s)
}
