package reporting

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"survey-dialer/internal/tasks"
)

func TestTaskSummary_Aggregates(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	old := now.Add(-time.Hour)

	repo := NewMemoryRepo()
	repo.Tasks = []tasks.Task{
		{ID: "p1", Status: tasks.StatusPending, ScheduledAt: now.Add(-2 * time.Hour)},
		{ID: "p2", Status: tasks.StatusPending, ScheduledAt: now.Add(2 * time.Hour)},
		{ID: "c1", Status: tasks.StatusClaimed, ScheduledAt: old, ClaimedAt: &old, LastError: "busy"},
		{ID: "c2", Status: tasks.StatusClaimed, ScheduledAt: recent, ClaimedAt: &recent},
		{ID: "d1", Status: tasks.StatusProcessed, ScheduledAt: old, RetryOf: "c0"},
		{ID: "out", Status: tasks.StatusProcessed, ScheduledAt: now.Add(-48 * time.Hour)},
	}
	svc := NewService(repo)

	out, err := svc.TaskSummary(context.Background(), TaskSummaryRequest{
		Range:      TimeRange{From: now.Add(-24 * time.Hour), To: now.Add(24 * time.Hour)},
		StaleAfter: 15 * time.Minute,
		Now:        now,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Total != 5 || out.Pending != 2 || out.Claimed != 2 || out.Processed != 1 {
		t.Fatalf("unexpected totals: %+v", out)
	}
	if out.OverduePending != 1 || out.StaleClaimed != 1 || out.FailuresRecorded != 1 || out.Retries != 1 {
		t.Fatalf("unexpected breakdown: %+v", out)
	}
	if out.DispatchSuccessRate < 0.33 || out.DispatchSuccessRate > 0.34 {
		t.Fatalf("unexpected rate %v", out.DispatchSuccessRate)
	}
}

func TestTaskSummary_RejectsBadRange(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Now()
	if _, err := svc.TaskSummary(context.Background(), TaskSummaryRequest{Range: TimeRange{From: now, To: now}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestStoreRepo_FiltersByScheduledTime(t *testing.T) {
	store := tasks.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = store.Create(ctx, tasks.Task{ID: "in", ScheduledAt: base, Status: tasks.StatusPending})
	_ = store.Create(ctx, tasks.Task{ID: "edge", ScheduledAt: base.Add(time.Hour), Status: tasks.StatusPending})

	got, err := NewStoreRepo(store).ListTasks(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "in" {
		t.Fatalf("expected only the task inside [from,to), got %+v", got)
	}
}

func TestTaskSummary_CountsOldRangesBeyondListLimit(t *testing.T) {
	store := tasks.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < tasks.MaxListLimit+50; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		_ = store.Create(ctx, tasks.Task{ID: fmt.Sprintf("t%04d", i), ScheduledAt: at, Status: tasks.StatusProcessed})
	}

	out, err := NewService(NewStoreRepo(store)).TaskSummary(ctx, TaskSummaryRequest{
		Range: TimeRange{From: base, To: base.Add(50 * time.Hour)},
		Now:   base.Add(2000 * time.Hour),
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if out.Total != 50 || out.Processed != 50 {
		t.Fatalf("expected 50 old tasks counted, got %+v", out)
	}
}
