package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"survey-dialer/internal/tasks"
	"survey-dialer/internal/telephony"
	"survey-dialer/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Store is the part of the task store gateway the dispatcher drives.
type Store interface {
	QueryDue(ctx context.Context, now time.Time, limit int) ([]tasks.Task, error)
	TryClaim(ctx context.Context, id string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, id, callSID string, now time.Time) error
	RecordFailure(ctx context.Context, id, msg string, now time.Time) error
	ListStaleClaimed(ctx context.Context, before time.Time, limit int) ([]tasks.Task, error)
}

// Recorder receives the dispatch trail. Failures are logged and ignored.
type Recorder interface {
	LogClaimed(ctx context.Context, taskID string) error
	LogCallPlaced(ctx context.Context, taskID, callSID string) error
	LogCallFailed(ctx context.Context, taskID, message string) error
}

// Limiter caps outbound dials per time window across dispatcher instances.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Options struct {
	Interval        time.Duration
	BatchSize       int
	Concurrency     int
	StaleClaimAfter time.Duration

	Limiter  Limiter
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// CycleResult counts what one poll cycle did.
type CycleResult struct {
	Due         int `json:"due"`
	Claimed     int `json:"claimed"`
	Placed      int `json:"placed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	RateLimited int `json:"rate_limited"`
	StaleClaims int `json:"stale_claims"`
}

// Dispatcher polls for due tasks and places one call per task.
//
// Ordering per task: claim, then call, then mark processed. A task whose call
// fails stays claimed, so no later cycle dials it again.
type Dispatcher struct {
	store  Store
	caller telephony.Caller
	opts   Options
	log    *slog.Logger
}

func New(store Store, caller telephony.Caller, opts Options) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.StaleClaimAfter <= 0 {
		opts.StaleClaimAfter = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		store:  store,
		caller: caller,
		opts:   opts,
		log:    logger.Component(opts.Logger, "dispatcher"),
	}
}

// Run polls until ctx is cancelled. The first cycle starts immediately.
// Cancellation is only observed between cycles; a running cycle always completes.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	t := time.NewTicker(d.opts.Interval)
	defer t.Stop()

	d.log.Info("dispatcher started",
		"provider", d.caller.Name(),
		"interval", d.opts.Interval.String(),
		"concurrency", d.opts.Concurrency,
	)
	for {
		res, err := d.RunCycle(context.WithoutCancel(ctx))
		if err == nil && res.Due > 0 {
			d.log.Info("dispatch cycle",
				"due", res.Due,
				"claimed", res.Claimed,
				"placed", res.Placed,
				"failed", res.Failed,
				"skipped", res.Skipped,
				"rate_limited", res.RateLimited,
			)
		}

		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return nil
		case <-t.C:
		}
	}
}

// Start runs the loop in the background. The returned channel is closed once
// Run has returned, which is after any in-flight cycle has been fully recorded.
func (d *Dispatcher) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := d.Run(ctx); err != nil {
			d.log.Error("dispatcher stopped", "err", err)
		}
	}()
	return done
}

// RunCycle performs one poll. A query failure aborts the cycle and is returned;
// per-task failures are logged and counted.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleResult, error) {
	now := d.opts.Now().UTC()

	due, err := d.store.QueryDue(ctx, now, d.opts.BatchSize)
	if err != nil {
		d.log.Error("query due tasks failed", "err", err)
		return CycleResult{}, err
	}

	tally := &cycleTally{res: CycleResult{Due: len(due)}}

	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for _, task := range due {
		if tally.windowFull.Load() {
			tally.add(func(r *CycleResult) { r.RateLimited++ })
			continue
		}
		task := task
		g.Go(func() error {
			d.dispatch(ctx, task, now, tally)
			return nil
		})
	}
	_ = g.Wait()

	res := tally.result()
	res.StaleClaims = d.reportStale(ctx, now)
	return res, nil
}

type cycleTally struct {
	mu         sync.Mutex
	res        CycleResult
	windowFull atomic.Bool
}

func (t *cycleTally) add(f func(r *CycleResult)) {
	t.mu.Lock()
	f(&t.res)
	t.mu.Unlock()
}

func (t *cycleTally) result() CycleResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.res
}

func (d *Dispatcher) dispatch(ctx context.Context, task tasks.Task, now time.Time, tally *cycleTally) {
	log := d.log.With("task_id", task.ID)

	if tally.windowFull.Load() {
		tally.add(func(r *CycleResult) { r.RateLimited++ })
		return
	}
	slot := false
	if d.opts.Limiter != nil {
		ok, err := d.opts.Limiter.Acquire(ctx)
		switch {
		case err != nil:
			// limiter outage: dial anyway rather than stall every survey
			log.Warn("dial limiter unavailable", "err", err)
		case !ok:
			tally.windowFull.Store(true)
			tally.add(func(r *CycleResult) { r.RateLimited++ })
			return
		default:
			slot = true
		}
	}
	release := func() {
		if slot {
			if err := d.opts.Limiter.Release(ctx); err != nil {
				log.Warn("dial slot release failed", "err", err)
			}
		}
	}

	claimed, err := d.store.TryClaim(ctx, task.ID, now)
	if err != nil {
		log.Error("claim failed", "err", err)
		release()
		tally.add(func(r *CycleResult) { r.Skipped++ })
		return
	}
	if !claimed {
		log.Debug("task already claimed elsewhere")
		release()
		tally.add(func(r *CycleResult) { r.Skipped++ })
		return
	}
	tally.add(func(r *CycleResult) { r.Claimed++ })
	d.audit(log, d.recorderCall(func(rec Recorder) error { return rec.LogClaimed(ctx, task.ID) }))

	h, err := d.caller.PlaceCall(ctx, telephony.OutboundCall{To: task.PhoneNumber, TaskID: task.ID})
	if err != nil {
		log.Error("outbound call failed, task left claimed", "err", err)
		tally.add(func(r *CycleResult) { r.Failed++ })
		if ferr := d.store.RecordFailure(ctx, task.ID, err.Error(), d.opts.Now().UTC()); ferr != nil {
			log.Warn("record failure failed", "err", ferr)
		}
		d.audit(log, d.recorderCall(func(rec Recorder) error { return rec.LogCallFailed(ctx, task.ID, err.Error()) }))
		return
	}

	log = log.With("call_sid", h.SID)
	tally.add(func(r *CycleResult) { r.Placed++ })
	if err := d.store.MarkProcessed(ctx, task.ID, h.SID, d.opts.Now().UTC()); err != nil {
		// the call is live; the task stays claimed and is never dialled again
		log.Error("mark processed failed", "err", err)
	} else {
		log.Info("call placed")
	}
	d.audit(log, d.recorderCall(func(rec Recorder) error { return rec.LogCallPlaced(ctx, task.ID, h.SID) }))
}

func (d *Dispatcher) reportStale(ctx context.Context, now time.Time) int {
	stale, err := d.store.ListStaleClaimed(ctx, now.Add(-d.opts.StaleClaimAfter), 20)
	if err != nil {
		d.log.Warn("list stale claims failed", "err", err)
		return 0
	}
	for _, t := range stale {
		attrs := []any{"task_id", t.ID, "last_error", t.LastError}
		if t.ClaimedAt != nil {
			attrs = append(attrs, "claimed_at", t.ClaimedAt.Format(time.RFC3339))
		}
		d.log.Warn("task stuck in claimed state", attrs...)
	}
	return len(stale)
}

func (d *Dispatcher) recorderCall(fn func(Recorder) error) error {
	if d.opts.Recorder == nil {
		return nil
	}
	return fn(d.opts.Recorder)
}

func (d *Dispatcher) audit(log *slog.Logger, err error) {
	if err != nil {
		log.Warn("audit append failed", "err", err)
	}
}
