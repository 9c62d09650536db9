package callflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"survey-dialer/internal/conversation"
	"survey-dialer/pkg/logger"
)

var ErrMissingCallID = errors.New("callflow: call id is required")

// Directive tells the telephony layer what to do next.
// Listen=false means speak Say and hang up.
type Directive struct {
	Say    string
	Listen bool
	Pause  time.Duration
}

// Replier is the reply generator as seen by the call flow. It always returns text.
type Replier interface {
	Generate(ctx context.Context, history []conversation.Turn) string
}

// Orchestrator drives one survey conversation per call.
//
// Silence policy: one silent turn earns a reprompt, a second consecutive one ends the call.
// Replayed webhook deliveries (same event key) and events after the call ended
// regenerate the directive for the current state without touching history.
type Orchestrator struct {
	store   *conversation.Store
	replier Replier
	cfg     Config
	clock   func() time.Time
}

func NewOrchestrator(store *conversation.Store, replier Replier, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:   store,
		replier: replier,
		cfg:     cfg.withDefaults(),
		clock:   time.Now,
	}
}

// ErrorDirective is what callers speak when a webhook cannot be handled.
func (o *Orchestrator) ErrorDirective() Directive {
	return Directive{Say: o.cfg.ErrorMessage}
}

func (o *Orchestrator) OnCallStarted(ctx context.Context, callID string) (Directive, error) {
	if strings.TrimSpace(callID) == "" {
		return Directive{}, ErrMissingCallID
	}
	log := logger.From(ctx).With("call_sid", callID)

	var d Directive
	err := o.store.Update(callID, func(s *conversation.Session) error {
		if s.Ended() {
			d = o.goodbye()
			return nil
		}
		if s.Init(o.cfg.SystemPrompt) {
			log.Info("call session started")
		}
		d = o.greeting()
		return nil
	})
	if err != nil {
		return Directive{}, fmt.Errorf("callflow: start %s: %w", callID, err)
	}
	return d, nil
}

// OnSpeechResult handles one gather result. eventKey identifies the delivery; an
// empty key disables replay detection. Only the latest key per call is kept, so a
// redelivery is caught only if nothing newer was processed in between. Twilio
// posts gathers for one call serially, which makes a late older key unlikely.
func (o *Orchestrator) OnSpeechResult(ctx context.Context, callID, text, eventKey string) (Directive, error) {
	if strings.TrimSpace(callID) == "" {
		return Directive{}, ErrMissingCallID
	}
	log := logger.From(ctx).With("call_sid", callID)
	text = strings.TrimSpace(text)

	var d Directive
	err := o.store.Update(callID, func(s *conversation.Session) error {
		if s.Ended() {
			d = o.goodbye()
			return nil
		}
		s.Init(o.cfg.SystemPrompt)

		if eventKey != "" && eventKey == s.LastEventKey {
			log.Debug("replayed speech event", "state", s.State)
			d = o.current(s)
			return nil
		}

		if text == "" {
			switch s.State {
			case conversation.StateRetryingSilence:
				s.End(o.clock())
				d = o.goodbye()
			default:
				s.State = conversation.StateRetryingSilence
				d = Directive{Say: o.cfg.Reprompt, Listen: true}
			}
			s.LastEventKey = eventKey
			log.Info("silence", "state", s.State)
			return nil
		}

		if err := s.Append(conversation.Turn{Role: conversation.RoleUser, Content: text}); err != nil {
			return err
		}
		reply := o.replier.Generate(ctx, s.History())
		if err := s.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: reply}); err != nil {
			return err
		}
		s.State = conversation.StateAwaitingSpeech
		s.LastEventKey = eventKey
		d = Directive{Say: reply, Listen: true}
		log.Debug("turn completed", "state", s.State)
		return nil
	})
	if err != nil {
		return Directive{}, fmt.Errorf("callflow: speech %s: %w", callID, err)
	}
	return d, nil
}

// OnCallEnded marks the session over. Later events for the call are answered with goodbye.
func (o *Orchestrator) OnCallEnded(ctx context.Context, callID string) error {
	if strings.TrimSpace(callID) == "" {
		return ErrMissingCallID
	}
	err := o.store.Update(callID, func(s *conversation.Session) error {
		s.End(o.clock())
		return nil
	})
	if err != nil {
		return fmt.Errorf("callflow: end %s: %w", callID, err)
	}
	logger.From(ctx).Info("call session ended", "call_sid", callID)
	return nil
}

// State returns the current phase of a call, for diagnostics.
func (o *Orchestrator) State(callID string) (conversation.State, bool) {
	s, ok := o.store.Snapshot(callID)
	if !ok {
		return conversation.StateNew, false
	}
	return s.State, true
}

func (o *Orchestrator) current(s *conversation.Session) Directive {
	switch s.State {
	case conversation.StateAwaitingSpeech:
		if last, ok := s.LastAssistant(); ok {
			return Directive{Say: last, Listen: true}
		}
	case conversation.StateRetryingSilence:
		return Directive{Say: o.cfg.Reprompt, Listen: true}
	case conversation.StateEnded:
		return o.goodbye()
	}
	return o.greeting()
}

func (o *Orchestrator) greeting() Directive {
	return Directive{Say: o.cfg.Greeting, Listen: true, Pause: o.cfg.GreetingPause}
}

func (o *Orchestrator) goodbye() Directive {
	return Directive{Say: o.cfg.Goodbye}
}
