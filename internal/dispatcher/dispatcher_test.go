package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"survey-dialer/internal/audit"
	"survey-dialer/internal/tasks"
	"survey-dialer/internal/telephony"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls []telephony.OutboundCall
	err   error
	fail  map[string]bool
	gate  chan struct{}
	began chan struct{}
}

func (f *fakeCaller) Name() string { return "fake" }

func (f *fakeCaller) PlaceCall(ctx context.Context, req telephony.OutboundCall) (telephony.CallHandle, error) {
	if f.began != nil {
		f.began <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return telephony.CallHandle{}, f.err
	}
	if f.fail[req.TaskID] {
		return telephony.CallHandle{}, errors.New("carrier rejected " + req.TaskID)
	}
	return telephony.CallHandle{SID: "CA-" + req.TaskID}, nil
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLimiter struct {
	mu       sync.Mutex
	left     int
	released int
}

func (f *fakeLimiter) Acquire(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.left == 0 {
		return false, nil
	}
	f.left--
	return true, nil
}

func (f *fakeLimiter) Release(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	f.left++
	return nil
}

type failingStore struct {
	*tasks.MemoryStore
}

func (failingStore) QueryDue(ctx context.Context, now time.Time, limit int) ([]tasks.Task, error) {
	return nil, errors.New("connection refused")
}

func clockAt(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func seed(t *testing.T, s *tasks.MemoryStore, id string, at time.Time) {
	t.Helper()
	if err := s.Create(context.Background(), tasks.Task{ID: id, PhoneNumber: "+15551234567", ScheduledAt: at, Status: tasks.StatusPending, CreatedAt: at}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestRunCycle_DispatchesDueTaskOnce(t *testing.T) {
	store := tasks.NewMemoryStore()
	caller := &fakeCaller{}
	events := audit.NewMemoryRepo()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d := New(store, caller, Options{Now: clockAt(&now), Recorder: audit.NewService(events)})
	ctx := context.Background()

	seed(t, store, "t1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := d.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Due != 1 || res.Claimed != 1 || res.Placed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	got, _ := store.Get(ctx, "t1")
	if got.Status != tasks.StatusProcessed || got.CallSID != "CA-t1" {
		t.Fatalf("expected processed task, got %+v", got)
	}
	if caller.calls[0].To != "+15551234567" {
		t.Fatalf("unexpected destination %q", caller.calls[0].To)
	}

	now = time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)
	res, err = d.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if res.Due != 0 || caller.count() != 1 {
		t.Fatalf("second cycle must not call again: %+v calls=%d", res, caller.count())
	}

	evs := events.Events()
	if len(evs) != 2 || evs[0].Type != audit.EventTypeTaskClaimed || evs[1].Type != audit.EventTypeCallPlaced {
		t.Fatalf("unexpected audit trail %+v", evs)
	}
}

func TestRunCycle_TriggerFailureLeavesTaskClaimed(t *testing.T) {
	store := tasks.NewMemoryStore()
	caller := &fakeCaller{err: errors.New("twilio 503")}
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d := New(store, caller, Options{Now: clockAt(&now)})
	ctx := context.Background()

	seed(t, store, "t1", now.Add(-time.Hour))

	res, err := d.RunCycle(ctx)
	if err != nil {
		t.Fatalf("trigger failures must not fail the cycle: %v", err)
	}
	if res.Failed != 1 || res.Placed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	got, _ := store.Get(ctx, "t1")
	if got.Status != tasks.StatusClaimed || got.LastError == "" {
		t.Fatalf("expected claimed task with error, got %+v", got)
	}

	now = now.Add(time.Minute)
	_, _ = d.RunCycle(ctx)
	if caller.count() != 1 {
		t.Fatalf("claimed task must not be dialled again, calls=%d", caller.count())
	}

	now = now.Add(time.Hour)
	res, _ = d.RunCycle(ctx)
	if res.StaleClaims != 1 {
		t.Fatalf("expected stale claim to be reported, got %+v", res)
	}
}

func TestRunCycle_QueryFailureAborts(t *testing.T) {
	caller := &fakeCaller{}
	d := New(failingStore{tasks.NewMemoryStore()}, caller, Options{})

	if _, err := d.RunCycle(context.Background()); err == nil {
		t.Fatalf("expected query error")
	}
	if caller.count() != 0 {
		t.Fatalf("no calls expected")
	}
}

func TestRunCycle_RateLimitKeepsTasksPending(t *testing.T) {
	store := tasks.NewMemoryStore()
	caller := &fakeCaller{}
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	lim := &fakeLimiter{left: 1}
	d := New(store, caller, Options{Now: clockAt(&now), Limiter: lim, Concurrency: 1})
	ctx := context.Background()

	seed(t, store, "a", now.Add(-3*time.Minute))
	seed(t, store, "b", now.Add(-2*time.Minute))
	seed(t, store, "c", now.Add(-time.Minute))

	res, err := d.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Placed != 1 || res.RateLimited != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, id := range []string{"b", "c"} {
		got, _ := store.Get(ctx, id)
		if got.Status != tasks.StatusPending {
			t.Fatalf("%s must stay pending, got %s", id, got.Status)
		}
	}
}

func TestRunCycle_ReleasesSlotWhenClaimLost(t *testing.T) {
	store := tasks.NewMemoryStore()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	seed(t, store, "t1", now)

	lim := &fakeLimiter{left: 5}
	// claimed by another instance between query and claim
	racing := &claimRacer{MemoryStore: store}
	d := New(racing, &fakeCaller{}, Options{Now: clockAt(&now), Limiter: lim})

	res, _ := d.RunCycle(context.Background())
	if res.Skipped != 1 || lim.released != 1 {
		t.Fatalf("expected skipped task and released slot, got %+v released=%d", res, lim.released)
	}
}

type claimRacer struct {
	*tasks.MemoryStore
}

func (c *claimRacer) TryClaim(ctx context.Context, id string, now time.Time) (bool, error) {
	_, _ = c.MemoryStore.TryClaim(ctx, id, now)
	return c.MemoryStore.TryClaim(ctx, id, now)
}

func TestConcurrentDispatchersNeverDoubleDial(t *testing.T) {
	store := tasks.NewMemoryStore()
	caller := &fakeCaller{}
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		seed(t, store, id, now)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		d := New(store, caller, Options{Now: clockAt(&now), Concurrency: 3})
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.RunCycle(context.Background())
		}()
	}
	wg.Wait()

	if caller.count() != 8 {
		t.Fatalf("expected one call per task, got %d", caller.count())
	}
	seen := map[string]bool{}
	for _, c := range caller.calls {
		if seen[c.TaskID] {
			t.Fatalf("task %s dialled twice", c.TaskID)
		}
		seen[c.TaskID] = true
	}
}

func TestRun_FinishesCycleBeforeStopping(t *testing.T) {
	store := tasks.NewMemoryStore()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	seed(t, store, "t1", now)

	caller := &fakeCaller{gate: make(chan struct{}), began: make(chan struct{}, 1)}
	d := New(store, caller, Options{Now: clockAt(&now), Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-caller.began
	cancel()
	close(caller.gate)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatcher did not stop")
	}

	got, _ := store.Get(context.Background(), "t1")
	if got.Status != tasks.StatusProcessed {
		t.Fatalf("in-flight dispatch must complete after cancel, got %s", got.Status)
	}
}

func TestStart_CancelDuringSlowCycleRecordsEveryClaim(t *testing.T) {
	store := tasks.NewMemoryStore()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	ids := []string{"t1", "t2", "t3", "t4", "t5", "t6"}
	for _, id := range ids {
		seed(t, store, id, now)
	}

	caller := &fakeCaller{
		fail:  map[string]bool{"t2": true, "t5": true},
		gate:  make(chan struct{}),
		began: make(chan struct{}, len(ids)),
	}
	d := New(store, caller, Options{Now: clockAt(&now), Interval: time.Hour, Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := d.Start(ctx)

	<-caller.began
	cancel()
	close(caller.gate)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatcher did not stop")
	}

	if caller.count() != len(ids) {
		t.Fatalf("expected every claimed task to be attempted, got %d calls", caller.count())
	}
	for _, id := range ids {
		got, _ := store.Get(context.Background(), id)
		switch {
		case got.Status == tasks.StatusProcessed:
		case got.Status == tasks.StatusClaimed && got.LastError != "":
		default:
			t.Fatalf("task %s left unrecorded: status=%s last_error=%q", id, got.Status, got.LastError)
		}
		if caller.fail[id] && got.Status != tasks.StatusClaimed {
			t.Fatalf("failed task %s should stay claimed, got %s", id, got.Status)
		}
	}
}

func TestStart_LogsProvider(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	store := tasks.NewMemoryStore()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	seed(t, store, "t1", now)
	caller := &fakeCaller{began: make(chan struct{}, 1)}
	d := New(store, caller, Options{Now: clockAt(&now), Interval: time.Hour, Logger: log})

	ctx, cancel := context.WithCancel(context.Background())
	done := d.Start(ctx)
	<-caller.began
	cancel()
	<-done

	if !strings.Contains(buf.String(), `"provider":"fake"`) {
		t.Fatalf("expected provider in start log, got %s", buf.String())
	}
}
