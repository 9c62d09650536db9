package telephony

import (
	"context"
	"net/http"

	"survey-dialer/internal/callflow"
	"survey-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallFlow is the conversation logic behind the voice webhooks.
type CallFlow interface {
	OnCallStarted(ctx context.Context, callID string) (callflow.Directive, error)
	OnSpeechResult(ctx context.Context, callID, text, eventKey string) (callflow.Directive, error)
	OnCallEnded(ctx context.Context, callID string) error
	ErrorDirective() callflow.Directive
}

// WebhookHandler converts Twilio webhooks to call flow events and writes TwiML.
//
// No business logic here.
type WebhookHandler struct {
	Flow   CallFlow
	Gather GatherOptions
}

// HandleVoice answers the call: greeting plus the first speech gather.
func (h WebhookHandler) HandleVoice(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	d, err := h.Flow.OnCallStarted(c.Request.Context(), form.CallSid)
	if err != nil {
		logger.FromGin(c).Error("call start failed", "call_sid", form.CallSid, "err", err)
		_ = c.Error(err)
		d = h.Flow.ErrorDirective()
	}
	h.writeTwiML(c, d)
}

// HandleGather receives one speech result, possibly empty.
func (h WebhookHandler) HandleGather(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	d, err := h.Flow.OnSpeechResult(c.Request.Context(), form.CallSid, form.SpeechResult, form.IdempotencyToken)
	if err != nil {
		logger.FromGin(c).Error("speech handling failed", "call_sid", form.CallSid, "err", err)
		_ = c.Error(err)
		d = h.Flow.ErrorDirective()
	}
	h.writeTwiML(c, d)
}

// HandleStatus receives the status callback and releases finished sessions.
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	if form.Terminal() {
		if err := h.Flow.OnCallEnded(c.Request.Context(), form.CallSid); err != nil {
			logger.FromGin(c).Warn("call end failed", "call_sid", form.CallSid, "err", err)
		}
	}
	c.Status(http.StatusNoContent)
}

func (h WebhookHandler) parse(c *gin.Context) (VoiceWebhook, bool) {
	if h.Flow == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call flow not configured"})
		return VoiceWebhook{}, false
	}
	form, err := ParseVoiceWebhook(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return VoiceWebhook{}, false
	}
	if form.CallSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing CallSid"})
		return VoiceWebhook{}, false
	}
	c.Set("call_sid", form.CallSid)
	return form, true
}

func (h WebhookHandler) writeTwiML(c *gin.Context, d callflow.Directive) {
	twiml, err := RenderTwiML(d, h.Gather)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
