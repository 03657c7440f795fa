package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes used as the "outcome" label.
const (
	OutcomeValid          = "valid"
	OutcomeInvalid        = "invalid"
	OutcomeTransportError = "transport_error"
	OutcomeFault          = "fault"
	OutcomeMalformed      = "malformed"
)

// VIESMetrics holds Prometheus metrics for VAT lookups against VIES.
// A nil *VIESMetrics is valid and records nothing.
type VIESMetrics struct {
	Lookups         *prometheus.CounterVec
	LookupDuration  *prometheus.HistogramVec
	RejectedQueries *prometheus.CounterVec
}

// NewVIESMetrics creates the VIES metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewVIESMetrics(namespace string, reg prometheus.Registerer) *VIESMetrics {
	if namespace == "" {
		namespace = "vies"
	}

	factory := promauto.With(reg)
	subsystem := "lookup"

	return &VIESMetrics{
		Lookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "total",
				Help:      "Total checkVat calls by country and outcome",
			},
			[]string{"country", "outcome"}, // outcome: valid, invalid, transport_error, fault, malformed
		),
		LookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "checkVat round trip time including response parsing",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		RejectedQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rejected_queries_total",
				Help:      "Queries refused before any call to VIES",
			},
			[]string{"reason"}, // reason: invalid_country, no_data_country, bad_request
		),
	}
}

// ObserveLookup records one finished checkVat call.
func (m *VIESMetrics) ObserveLookup(country, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(country, outcome).Inc()
	m.LookupDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RejectQuery records a query refused before reaching VIES.
func (m *VIESMetrics) RejectQuery(reason string) {
	if m == nil {
		return
	}
	m.RejectedQueries.WithLabelValues(reason).Inc()
}
