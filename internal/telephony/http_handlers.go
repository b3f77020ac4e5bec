package telephony

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cart-dialer/pkg/logger"
)

// EventSink persists status events (see internal/reconcile).
type EventSink interface {
	Record(ctx context.Context, ev StatusEvent) error
}

// StatusWebhookHandler converts provider callbacks to StatusEvents and hands
// them to the sink. Callbacks without a valid signature or shared secret are
// rejected; a provider with no credential configured here is rejected too.
//
// No business logic here.
type StatusWebhookHandler struct {
	Sink EventSink
	Now  func() time.Time

	// TwilioAuthToken signs Twilio callbacks. TwilioCallbackURL is the URL
	// Twilio was given; when empty it is rebuilt from the request.
	TwilioAuthToken   string
	TwilioCallbackURL string

	// VapiSecret must match the X-Vapi-Secret header.
	VapiSecret string
}

func (h StatusWebhookHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h StatusWebhookHandler) HandleTwilioStatus(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event store not configured"})
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	callbackURL := h.TwilioCallbackURL
	if callbackURL == "" {
		callbackURL = requestURL(c.Request)
	}
	if !ValidTwilioSignature(h.TwilioAuthToken, callbackURL, c.Request.PostForm, c.GetHeader(TwilioSignatureHeader)) {
		log.Warn("twilio status signature rejected", "url", callbackURL)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	form, err := ParseTwilioStatus(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	ev := form.ToStatusEvent(h.now())
	if err := h.Sink.Record(c.Request.Context(), ev); err != nil {
		log.Error("status event store failed", "call_id", ev.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}
	log.Info("twilio status recorded", "call_id", ev.ProviderCallID, "status", ev.Status)
	c.Status(http.StatusNoContent)
}

func (h StatusWebhookHandler) HandleVapi(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event store not configured"})
		return
	}

	if !ValidVapiSecret(h.VapiSecret, c.GetHeader(VapiSecretHeader)) {
		log.Warn("vapi webhook secret rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}

	w, err := ParseVapiWebhook(c.Request)
	if err != nil {
		log.Warn("vapi webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !w.Storable() {
		// transcripts, tool calls and the like are acknowledged and dropped
		c.Status(http.StatusNoContent)
		return
	}

	ev := w.ToStatusEvent(h.now())
	if err := h.Sink.Record(c.Request.Context(), ev); err != nil {
		log.Error("status event store failed", "call_id", ev.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}
	log.Info("vapi status recorded", "call_id", ev.ProviderCallID, "status", ev.Status)
	c.Status(http.StatusNoContent)
}
