package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cart-dialer/internal/telephony"
)

// RouterDeps carries what NewRouter wires. Auth is required for /v1.
type RouterDeps struct {
	Handlers Handlers
	Webhooks telephony.StatusWebhookHandler
	Auth     gin.HandlerFunc
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func RegisterRoutes(r *gin.Engine, d RouterDeps) {
	h := d.Handlers

	// public
	r.GET("/healthz", h.Health)
	r.GET("/readyz", h.Readiness)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Provider webhooks: no operator token, each carries the provider's signature or secret.
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/twilio/status", d.Webhooks.HandleTwilioStatus)
		webhooks.POST("/vapi", d.Webhooks.HandleVapi)
	}

	v1 := r.Group("/v1")
	v1.Use(d.Auth)
	{
		v1.POST("/calls", h.PlaceCall)
		v1.GET("/calls/:call_id/status", h.CallStatus)
		v1.GET("/report", h.Report)
	}
}
