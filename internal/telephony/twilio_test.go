package telephony

import (
	"context"
	"errors"
	"testing"
	"time"

	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCallCreator struct {
	got *openapi.CreateCallParams
	sid string
	err error
}

func (f *fakeCallCreator) CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	status := "queued"
	return &openapi.ApiV2010Call{Sid: &f.sid, Status: &status}, nil
}

func TestTwilioCaller_PlaceCall(t *testing.T) {
	api := &fakeCallCreator{sid: "CA42"}
	caller, err := NewTwilioCallerWithAPI(api, TwilioConfig{FromNumber: "+15550000000", PublicURL: "https://dialer.example.com/"})
	if err != nil {
		t.Fatalf("new caller: %v", err)
	}

	h, err := caller.PlaceCall(context.Background(), OutboundCall{To: " +15551234567 ", TaskID: "t1"})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if h.SID != "CA42" || h.Status != "queued" {
		t.Fatalf("unexpected handle %+v", h)
	}
	p := api.got
	if *p.To != "+15551234567" || *p.From != "+15550000000" {
		t.Fatalf("unexpected to/from %q %q", *p.To, *p.From)
	}
	if *p.Url != "https://dialer.example.com/voice" || *p.StatusCallback != "https://dialer.example.com/status" {
		t.Fatalf("unexpected urls %q %q", *p.Url, *p.StatusCallback)
	}
	if *p.Timeout != int(30*time.Second/time.Second) {
		t.Fatalf("unexpected ring timeout %d", *p.Timeout)
	}
}

func TestTwilioCaller_Errors(t *testing.T) {
	api := &fakeCallCreator{err: errors.New("21211 invalid number")}
	caller, _ := NewTwilioCallerWithAPI(api, TwilioConfig{FromNumber: "+1555", PublicURL: "https://x"})

	if _, err := caller.PlaceCall(context.Background(), OutboundCall{To: ""}); !errors.Is(err, ErrMissingDestination) {
		t.Fatalf("expected ErrMissingDestination, got %v", err)
	}
	if _, err := caller.PlaceCall(context.Background(), OutboundCall{To: "+1999"}); err == nil {
		t.Fatalf("expected provider error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api.err = nil
	api.got = nil
	if _, err := caller.PlaceCall(ctx, OutboundCall{To: "+1999"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if api.got != nil {
		t.Fatalf("no call should be created for a cancelled context")
	}
}

func TestNewTwilioCallerWithAPI_Validates(t *testing.T) {
	if _, err := NewTwilioCallerWithAPI(&fakeCallCreator{}, TwilioConfig{PublicURL: "https://x"}); err == nil {
		t.Fatalf("expected missing from number error")
	}
	if _, err := NewTwilioCallerWithAPI(&fakeCallCreator{}, TwilioConfig{FromNumber: "+1"}); err == nil {
		t.Fatalf("expected missing public url error")
	}
}
