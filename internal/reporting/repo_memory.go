package reporting

import (
	"context"
	"sync"
	"time"

	"survey-dialer/internal/tasks"
)

// MemoryRepo is a simple in-memory reporting repository for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	Tasks []tasks.Task
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListTasks(ctx context.Context, from, to time.Time) ([]tasks.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return inRange(r.Tasks, from, to), nil
}

// RangeLister is satisfied by any tasks.Store.
type RangeLister interface {
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]tasks.Task, error)
}

// StoreRepo reads straight from a task store, memory or Postgres.
type StoreRepo struct {
	store RangeLister
}

func NewStoreRepo(store RangeLister) *StoreRepo { return &StoreRepo{store: store} }

func (r *StoreRepo) ListTasks(ctx context.Context, from, to time.Time) ([]tasks.Task, error) {
	return r.store.ListScheduledBetween(ctx, from, to)
}

func inRange(ts []tasks.Task, from, to time.Time) []tasks.Task {
	out := make([]tasks.Task, 0)
	for _, t := range ts {
		if t.ScheduledAt.Before(from) || !t.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, t)
	}
	return out
}
