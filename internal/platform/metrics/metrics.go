// Package metrics registers and exposes the Prometheus counters and
// histograms described in spec §4.11 / §6. The outcome counter is
// incremented directly by the Governance Gate rather than by transport
// middleware, so unit tests can assert on it without an HTTP round
// trip. The review/admin handlers record no metrics, and nothing in the
// request path calls ObserveDuration; the duration histogram is
// registered and exposed but stays empty in the running service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Governance holds the governance-specific metric vectors. Construct
// once at startup, pass it to the gate, and mount Handler on /metrics.
type Governance struct {
	registry *prometheus.Registry
	outcome  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewGovernance() *Governance {
	registry := prometheus.NewRegistry()

	outcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gcu_governance_outcome_total",
		Help: "Count of governance decisions by final outcome status.",
	}, []string{"outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gcu_governance_request_duration_seconds",
		Help:    "Latency of governance decision routes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	registry.MustRegister(outcome, duration)

	return &Governance{registry: registry, outcome: outcome, duration: duration}
}

func (g *Governance) ObserveOutcome(outcome string) {
	g.outcome.WithLabelValues(outcome).Inc()
}

func (g *Governance) ObserveDuration(route string, seconds float64) {
	g.duration.WithLabelValues(route).Observe(seconds)
}

// Handler returns the /metrics HTTP handler in Prometheus text
// exposition format.
func (g *Governance) Handler() http.Handler {
	return promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})
}
