package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// VoiceWebhook captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml/gather#action
type VoiceWebhook struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	Direction    string
	CallStatus   string
	SpeechResult string
	Confidence   float64

	// IdempotencyToken is Twilio's per-delivery id, stable across retries.
	IdempotencyToken string
}

const headerIdempotencyToken = "I-Twilio-Idempotency-Token"

func ParseVoiceWebhook(r *http.Request) (VoiceWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceWebhook{}, err
	}
	f := VoiceWebhook{
		CallSid:          strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:       r.PostFormValue("AccountSid"),
		From:             trimPhone(r.PostFormValue("From")),
		To:               trimPhone(r.PostFormValue("To")),
		Direction:        r.PostFormValue("Direction"),
		CallStatus:       r.PostFormValue("CallStatus"),
		SpeechResult:     strings.TrimSpace(r.PostFormValue("SpeechResult")),
		IdempotencyToken: r.Header.Get(headerIdempotencyToken),
	}
	if c := r.PostFormValue("Confidence"); c != "" {
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			f.Confidence = v
		}
	}
	return f, nil
}

// Terminal reports whether CallStatus means the call is over.
func (f VoiceWebhook) Terminal() bool {
	switch f.CallStatus {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	}
	return false
}

func trimPhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}
