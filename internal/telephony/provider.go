package telephony

import (
	"context"
	"errors"
)

// Caller places outbound calls. Only telephony adapters talk to provider SDKs.
type Caller interface {
	Name() string
	PlaceCall(ctx context.Context, req OutboundCall) (CallHandle, error)
}

// OutboundCall is a request to ring one phone number and run the survey on answer.
type OutboundCall struct {
	// To is the destination number, E.164 where possible.
	To string `json:"to"`

	// TaskID links the call back to the scheduled task, for logs only.
	TaskID string `json:"task_id,omitempty"`
}

// CallHandle identifies a call accepted by the provider.
type CallHandle struct {
	SID    string `json:"sid"`
	Status string `json:"status,omitempty"`
}

var (
	ErrMissingDestination = errors.New("telephony: destination number is required")
	ErrNoCallSID          = errors.New("telephony: provider returned no call sid")
)
