package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type StoreOptions struct {
	MaxTurns     int
	IdleTTL      time.Duration
	TombstoneTTL time.Duration
	Now          func() time.Time
}

type entry struct {
	mu      sync.Mutex
	sess    *Session
	removed bool
}

// Store keeps one Session per call. Each session has its own lock; the map lock
// is only held for lookup and insert, so unrelated calls never wait on each other.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	opts    StoreOptions
}

func NewStore(opts StoreOptions) *Store {
	if opts.MaxTurns == 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.MaxTurns < MinTurns {
		opts.MaxTurns = MinTurns
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 2 * time.Hour
	}
	if opts.TombstoneTTL <= 0 {
		opts.TombstoneTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{entries: map[string]*entry{}, opts: opts}
}

func (s *Store) MaxTurns() int { return s.opts.MaxTurns }

func (s *Store) lookup(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{sess: newSession(id, s.opts.MaxTurns, s.opts.Now())}
		s.entries[id] = e
	}
	return e
}

// Update runs fn with exclusive access to the session for id, creating it if needed.
// fn must not retain the session after it returns.
func (s *Store) Update(id string, fn func(*Session) error) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidSessionID
	}
	for {
		e := s.lookup(id)
		e.mu.Lock()
		if e.removed {
			// swept between lookup and lock; the map now holds a fresh entry
			e.mu.Unlock()
			continue
		}
		err := fn(e.sess)
		e.sess.UpdatedAt = s.opts.Now()
		e.mu.Unlock()
		return err
	}
}

// Snapshot returns a copy of the session, or false if the store has never seen id.
func (s *Store) Snapshot(id string) (Session, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Session{}, false
	}
	cp := *e.sess
	cp.history = e.sess.History()
	return cp, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops idle sessions and expired tombstones. Sessions that are locked
// right now are in use and left for the next pass.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		sess := e.sess
		expired := false
		if sess.Ended() {
			expired = now.Sub(sess.EndedAt) >= s.opts.TombstoneTTL
		} else {
			expired = now.Sub(sess.UpdatedAt) >= s.opts.IdleTTL
		}
		if expired {
			e.removed = true
			delete(s.entries, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// RunSweeper sweeps on every tick until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(s.opts.Now()); n > 0 && log != nil {
				log.Debug("sessions swept", "removed", n, "remaining", s.Len())
			}
		}
	}
}
