package reporting

import (
	"context"
	"errors"
	"time"

	"survey-dialer/internal/tasks"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
type Repository interface {
	// ListTasks returns tasks scheduled in [from, to).
	ListTasks(ctx context.Context, from, to time.Time) ([]tasks.Task, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service { return &Service{repo: repo, clock: time.Now} }

func (s *Service) TaskSummary(ctx context.Context, req TaskSummaryRequest) (TaskSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return TaskSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return TaskSummary{}, errors.New("reporting: repository not configured")
	}
	now := req.Now
	if now.IsZero() {
		now = s.clock()
	}
	staleAfter := req.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}

	rows, err := s.repo.ListTasks(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return TaskSummary{}, err
	}

	out := TaskSummary{Range: req.Range}
	for _, t := range rows {
		out.Total++
		if t.LastError != "" {
			out.FailuresRecorded++
		}
		if t.RetryOf != "" {
			out.Retries++
		}
		switch t.Status {
		case tasks.StatusPending:
			out.Pending++
			if !t.ScheduledAt.After(now) {
				out.OverduePending++
			}
		case tasks.StatusClaimed:
			out.Claimed++
			if t.ClaimedAt != nil && now.Sub(*t.ClaimedAt) >= staleAfter {
				out.StaleClaimed++
			}
		case tasks.StatusProcessed:
			out.Processed++
		}
	}
	if n := out.Claimed + out.Processed; n > 0 {
		out.DispatchSuccessRate = float64(out.Processed) / float64(n)
	}
	return out, nil
}
