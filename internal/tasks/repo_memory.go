package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for local runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: map[string]Task{}}
}

func (m *MemoryStore) Create(ctx context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return ErrAlreadyExists
	}
	if t.RetryOf != "" {
		for _, other := range m.tasks {
			if other.RetryOf == t.RetryOf {
				return ErrAlreadyExists
			}
		}
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) List(ctx context.Context, f ListFilter) ([]Task, error) {
	m.mu.Lock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) QueryDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	m.mu.Lock()
	var out []Task
	for _, t := range m.tasks {
		if t.Status == StatusPending && !t.ScheduledAt.After(now) {
			out = append(out, t)
		}
	}
	m.mu.Unlock()

	sortOldestFirst(out, func(t Task) time.Time { return t.ScheduledAt })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) TryClaim(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != StatusPending {
		return false, nil
	}
	at := now.UTC()
	t.Status = StatusClaimed
	t.ClaimedAt = &at
	m.tasks[id] = t
	return true, nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, id, callSID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != StatusClaimed {
		return ErrInvalidTransition
	}
	at := now.UTC()
	t.Status = StatusProcessed
	t.ProcessedAt = &at
	t.CallSID = callSID
	m.tasks[id] = t
	return nil
}

func (m *MemoryStore) RecordFailure(ctx context.Context, id, msg string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.LastError = msg
	m.tasks[id] = t
	return nil
}

func (m *MemoryStore) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]Task, error) {
	m.mu.Lock()
	out := make([]Task, 0)
	for _, t := range m.tasks {
		if !t.ScheduledAt.Before(from) && t.ScheduledAt.Before(to) {
			out = append(out, t)
		}
	}
	m.mu.Unlock()

	sortOldestFirst(out, func(t Task) time.Time { return t.ScheduledAt })
	return out, nil
}

func (m *MemoryStore) ListStaleClaimed(ctx context.Context, before time.Time, limit int) ([]Task, error) {
	m.mu.Lock()
	var out []Task
	for _, t := range m.tasks {
		if t.Status == StatusClaimed && t.ClaimedAt != nil && t.ClaimedAt.Before(before) {
			out = append(out, t)
		}
	}
	m.mu.Unlock()

	sortOldestFirst(out, func(t Task) time.Time { return *t.ClaimedAt })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortOldestFirst(ts []Task, key func(Task) time.Time) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := key(ts[i]), key(ts[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return ts[i].ID < ts[j].ID
	})
}
