package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialerMetrics exposes counters/histograms for the call pipeline.
type DialerMetrics struct {
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	logAppends      *prometheus.CounterVec
	statusEvents    *prometheus.CounterVec
}

func NewDialerMetrics(reg prometheus.Registerer) *DialerMetrics {
	m := &DialerMetrics{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart_dialer",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Call outcomes by provider and status",
		}, []string{"provider", "status"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cart_dialer",
			Subsystem: "dispatch",
			Name:      "latency_seconds",
			Help:      "Latency of provider call placement",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart_dialer",
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Retried call placements",
		}, []string{"provider"}),
		logAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart_dialer",
			Subsystem: "calllog",
			Name:      "appends_total",
			Help:      "Call log appends by result",
		}, []string{"result"}),
		statusEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart_dialer",
			Subsystem: "webhook",
			Name:      "status_events_total",
			Help:      "Provider call status events received",
		}, []string{"provider", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatchTotal, m.dispatchLatency, m.retriesTotal, m.logAppends, m.statusEvents)
	return m
}

func (m *DialerMetrics) ObserveDispatch(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(provider, status).Inc()
	m.dispatchLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *DialerMetrics) ObserveRetry(provider string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(provider).Inc()
}

func (m *DialerMetrics) ObserveAppend(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.logAppends.WithLabelValues(result).Inc()
}

func (m *DialerMetrics) ObserveStatusEvent(provider, status string) {
	if m == nil {
		return
	}
	m.statusEvents.WithLabelValues(provider, status).Inc()
}
