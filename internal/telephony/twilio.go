package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallCreator is the slice of the Twilio REST API used to originate calls.
type CallCreator interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	PublicURL   string
	RingTimeout time.Duration
}

// TwilioCaller is the outbound call trigger. Twilio requests PUBLIC_URL/voice
// when the callee answers and reports lifecycle changes to PUBLIC_URL/status.
type TwilioCaller struct {
	api         CallCreator
	from        string
	answerURL   string
	statusURL   string
	ringTimeout time.Duration
}

func NewTwilioCaller(cfg TwilioConfig) (*TwilioCaller, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("telephony: twilio credentials are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewTwilioCallerWithAPI(client.Api, cfg)
}

func NewTwilioCallerWithAPI(api CallCreator, cfg TwilioConfig) (*TwilioCaller, error) {
	if api == nil {
		return nil, errors.New("telephony: twilio api is nil")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, errors.New("telephony: twilio from number is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if base == "" {
		return nil, errors.New("telephony: public url is required")
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 30 * time.Second
	}
	return &TwilioCaller{
		api:         api,
		from:        cfg.FromNumber,
		answerURL:   base + "/voice",
		statusURL:   base + "/status",
		ringTimeout: cfg.RingTimeout,
	}, nil
}

func (p *TwilioCaller) Name() string { return "twilio" }

func (p *TwilioCaller) PlaceCall(ctx context.Context, req OutboundCall) (CallHandle, error) {
	to := trimPhone(req.To)
	if to == "" {
		return CallHandle{}, ErrMissingDestination
	}
	// the SDK call is not cancellable; at least don't start one for a dead context
	if err := ctx.Err(); err != nil {
		return CallHandle{}, err
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(p.from)
	params.SetUrl(p.answerURL)
	params.SetMethod("POST")
	params.SetTimeout(int(p.ringTimeout / time.Second))
	params.SetStatusCallback(p.statusURL)
	params.SetStatusCallbackMethod("POST")
	params.SetStatusCallbackEvent([]string{"completed"})

	call, err := p.api.CreateCall(params)
	if err != nil {
		return CallHandle{}, fmt.Errorf("telephony: twilio create call: %w", err)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return CallHandle{}, ErrNoCallSID
	}
	h := CallHandle{SID: *call.Sid}
	if call.Status != nil {
		h.Status = *call.Status
	}
	return h, nil
}
