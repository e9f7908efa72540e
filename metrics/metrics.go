package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "settlement"

// Metrics wraps the collectors tracking price discovery and settlement health.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	probeFailures      *prometheus.CounterVec
	quoteResults       *prometheus.CounterVec
	quoteAttemptErrors *prometheus.CounterVec
	payments           *prometheus.CounterVec
	blockhashFailures  prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil registerer
// leaves the collectors unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_probe_failures_total",
			Help:      "Count of failed endpoint health probes segmented by endpoint role.",
		}, []string{"role"}),
		quoteResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_results_total",
			Help:      "Count of served quotes segmented by source (live, cache, stale-cache, estimate).",
		}, []string{"source"}),
		quoteAttemptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_attempt_failures_total",
			Help:      "Count of failed aggregator quote attempts segmented by endpoint.",
		}, []string{"endpoint"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Count of payment status transitions segmented by resulting status.",
		}, []string{"status"}),
		blockhashFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blockhash_failures_total",
			Help:      "Count of failed latest-blockhash requests.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.probeFailures,
			m.quoteResults,
			m.quoteAttemptErrors,
			m.payments,
			m.blockhashFailures,
		)
	}
	return m
}

// ProbeFailed records a failed probe of an endpoint with the given role.
func (m *Metrics) ProbeFailed(role string) {
	if m == nil {
		return
	}
	m.probeFailures.WithLabelValues(role).Inc()
}

// QuoteServed records a quote handed to a caller.
func (m *Metrics) QuoteServed(source string) {
	if m == nil {
		return
	}
	m.quoteResults.WithLabelValues(source).Inc()
}

// QuoteAttemptFailed records a failed aggregator attempt against endpoint.
func (m *Metrics) QuoteAttemptFailed(endpoint string) {
	if m == nil {
		return
	}
	m.quoteAttemptErrors.WithLabelValues(endpoint).Inc()
}

// PaymentSettled records a payment reaching status.
func (m *Metrics) PaymentSettled(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

// BlockhashFailed records a failed blockhash request.
func (m *Metrics) BlockhashFailed() {
	if m == nil {
		return
	}
	m.blockhashFailures.Inc()
}
