package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout state transitions and gateway latency.
type CheckoutMetrics struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	gateway     *prometheus.HistogramVec
	cleared     prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_transitions_total",
		Help: "Checkout sessions entering each state.",
	}, []string{"state"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failures_total",
		Help: "Checkout failures by the step that failed.",
	}, []string{"step"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Duration of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	cleared := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_carts_cleared_total",
		Help: "Carts cleared after a committed order.",
	})
	reg.MustRegister(transitions, failures, gateway, cleared)
	return &CheckoutMetrics{
		transitions: transitions,
		failures:    failures,
		gateway:     gateway,
		cleared:     cleared,
	}
}

// IncTransition counts a session entering state.
func (m *CheckoutMetrics) IncTransition(state string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(state)).Inc()
}

// IncFailure counts a session failing at step.
func (m *CheckoutMetrics) IncFailure(step string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(step)).Inc()
}

// ObserveGateway records one gateway call.
func (m *CheckoutMetrics) ObserveGateway(operation string, err error, duration time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gateway.WithLabelValues(normalizeLabel(operation), outcome).Observe(duration.Seconds())
}

// IncCartCleared counts a cart cleared by a completed checkout.
func (m *CheckoutMetrics) IncCartCleared() {
	if m == nil || m.cleared == nil {
		return
	}
	m.cleared.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
