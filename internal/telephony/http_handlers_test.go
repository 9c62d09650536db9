package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"survey-dialer/internal/callflow"

	"github.com/gin-gonic/gin"
)

type fakeFlow struct {
	directive callflow.Directive
	err       error

	gotText  string
	gotKey   string
	ended    []string
	startErr error
}

func (f *fakeFlow) OnCallStarted(ctx context.Context, callID string) (callflow.Directive, error) {
	return f.directive, f.startErr
}

func (f *fakeFlow) OnSpeechResult(ctx context.Context, callID, text, eventKey string) (callflow.Directive, error) {
	f.gotText, f.gotKey = text, eventKey
	return f.directive, f.err
}

func (f *fakeFlow) OnCallEnded(ctx context.Context, callID string) error {
	f.ended = append(f.ended, callID)
	return nil
}

func (f *fakeFlow) ErrorDirective() callflow.Directive {
	return callflow.Directive{Say: "technical difficulties"}
}

func newWebhookRouter(flow CallFlow) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := WebhookHandler{Flow: flow, Gather: DefaultGatherOptions()}
	r := gin.New()
	r.POST("/voice", h.HandleVoice)
	r.POST("/gather", h.HandleGather)
	r.POST("/status", h.HandleStatus)
	return r
}

func postForm(r http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHandleVoice_RendersGreeting(t *testing.T) {
	flow := &fakeFlow{directive: callflow.Directive{Say: "Hello there", Listen: true}}
	w := postForm(newWebhookRouter(flow), "/voice", "CallSid=CA1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<Gather") || !strings.Contains(w.Body.String(), "Hello there") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestHandleVoice_MissingCallSid(t *testing.T) {
	w := postForm(newWebhookRouter(&fakeFlow{}), "/voice", "From=%2B1555", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleGather_PassesSpeechAndToken(t *testing.T) {
	flow := &fakeFlow{directive: callflow.Directive{Say: "What did you buy?", Listen: true}}
	w := postForm(newWebhookRouter(flow), "/gather", "CallSid=CA1&SpeechResult=yes", map[string]string{"I-Twilio-Idempotency-Token": "tok-9"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if flow.gotText != "yes" || flow.gotKey != "tok-9" {
		t.Fatalf("unexpected forwarded values %q %q", flow.gotText, flow.gotKey)
	}
}

func TestHandleGather_FailureIsSpokenNotDropped(t *testing.T) {
	flow := &fakeFlow{err: errors.New("boom")}
	w := postForm(newWebhookRouter(flow), "/gather", "CallSid=CA1&SpeechResult=yes", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with spoken error, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "technical difficulties") || !strings.Contains(body, "<Hangup") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHandleStatus_EndsOnTerminalStatus(t *testing.T) {
	flow := &fakeFlow{}
	r := newWebhookRouter(flow)

	if w := postForm(r, "/status", "CallSid=CA1&CallStatus=ringing", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := postForm(r, "/status", "CallSid=CA1&CallStatus=completed", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(flow.ended) != 1 || flow.ended[0] != "CA1" {
		t.Fatalf("expected one end for CA1, got %v", flow.ended)
	}
}
