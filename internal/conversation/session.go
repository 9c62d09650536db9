package conversation

import (
	"fmt"
	"time"
)

// Session is the per-call conversation state.
//
// Invariants:
// - history[0] is the system turn once initialized, and is never trimmed away.
// - a user turn always follows the system turn or an assistant turn.
// - len(history) <= maxTurns.
//
// A Session is only touched while its store entry is locked; it has no lock of its own.
type Session struct {
	ID    string
	State State

	// LastEventKey is the provider idempotency token of the last processed speech event.
	LastEventKey string

	CreatedAt time.Time
	UpdatedAt time.Time
	EndedAt   time.Time

	history  []Turn
	maxTurns int
}

func newSession(id string, maxTurns int, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateNew,
		CreatedAt: now,
		UpdatedAt: now,
		history:   make([]Turn, 0, maxTurns+1),
		maxTurns:  maxTurns,
	}
}

// Initialized reports whether the system turn is in place.
func (s *Session) Initialized() bool {
	return len(s.history) > 0 && s.history[0].Role == RoleSystem
}

// Ended reports whether the call is over.
func (s *Session) Ended() bool { return s.State == StateEnded }

// Init seeds the history with the system prompt and moves to Greeting.
// It returns false, changing nothing, when the session was already initialized or has ended.
func (s *Session) Init(systemPrompt string) bool {
	if s.Initialized() || s.Ended() {
		return false
	}
	s.history = append(s.history[:0], Turn{Role: RoleSystem, Content: systemPrompt})
	s.State = StateGreeting
	return true
}

// Append adds a user or assistant turn and trims the history to the cap.
func (s *Session) Append(t Turn) error {
	if s.Ended() {
		return ErrSessionEnded
	}
	if !s.Initialized() {
		return ErrNotInitialized
	}
	prev := s.history[len(s.history)-1].Role
	switch t.Role {
	case RoleUser:
		if prev != RoleSystem && prev != RoleAssistant {
			return fmt.Errorf("%w: user after %s", ErrOutOfOrder, prev)
		}
	case RoleAssistant:
		if prev != RoleUser {
			return fmt.Errorf("%w: assistant after %s", ErrOutOfOrder, prev)
		}
	default:
		return fmt.Errorf("%w: cannot append %q turn", ErrOutOfOrder, t.Role)
	}
	s.history = Trim(append(s.history, t), s.maxTurns)
	return nil
}

// History returns a copy of the turns, oldest first.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// LastAssistant returns the most recent assistant turn, if any.
func (s *Session) LastAssistant() (string, bool) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == RoleAssistant {
			return s.history[i].Content, true
		}
	}
	return "", false
}

// End marks the call over and releases the history.
func (s *Session) End(now time.Time) {
	if s.Ended() {
		return
	}
	s.State = StateEnded
	s.EndedAt = now
	s.history = nil
}

// Trim enforces the max-turns cap by dropping the oldest non-system turns.
// A leading assistant turn left behind is dropped too, so the model always sees
// the system turn followed by a user turn. The input slice is reused.
func Trim(turns []Turn, max int) []Turn {
	if max < MinTurns {
		max = MinTurns
	}
	if len(turns) <= max {
		return turns
	}
	keep := 0
	if turns[0].Role == RoleSystem {
		keep = 1
	}
	drop := len(turns) - max
	for keep+drop < len(turns) && turns[keep+drop].Role == RoleAssistant {
		drop++
	}
	return append(turns[:keep], turns[keep+drop:]...)
}
