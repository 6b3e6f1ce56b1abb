// Package metrics exposes Prometheus instrumentation for the pricing engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "comp_pricer"

// Outcome labels for pricing calls.
const (
	OutcomeCacheHit     = "cache_hit"
	OutcomeComputed     = "computed"
	OutcomeWaited       = "waited"
	OutcomeStale        = "stale"
	OutcomeBusy         = "busy"
	OutcomeFailed       = "failed"
	OutcomeInsufficient = "insufficient_data"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	Requests        *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	Computations    prometheus.Counter
	StaleFallbacks  prometheus.Counter
	BusyRejections  prometheus.Counter
	SourceFailures  *prometheus.CounterVec
	ComputeDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_requests_total",
			Help:      "Pricing calls by outcome.",
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Freshness cache lookups by result (hit or miss).",
		}, []string{"result"}),
		Computations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_total",
			Help:      "Aggregations executed.",
		}),
		StaleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_fallbacks_total",
			Help:      "Expired results served because sources missed the deadline.",
		}),
		BusyRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_rejections_total",
			Help:      "Non-blocking calls rejected while a computation was in flight.",
		}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Per-source fetch failures.",
		}, []string{"source"}),
		ComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Time from leader election to published result.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.CacheLookups, m.Computations, m.StaleFallbacks,
			m.BusyRejections, m.SourceFailures, m.ComputeDuration)
	}
	return m
}

// ObserveRequest counts a finished pricing call.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
	switch outcome {
	case OutcomeStale:
		m.StaleFallbacks.Inc()
	case OutcomeBusy:
		m.BusyRejections.Inc()
	}
}

// ObserveCache counts a freshness lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveCompute counts an executed aggregation and its duration.
func (m *Metrics) ObserveCompute(d time.Duration) {
	if m == nil {
		return
	}
	m.Computations.Inc()
	m.ComputeDuration.Observe(d.Seconds())
}

// ObserveSourceFailure counts a failed source fetch.
func (m *Metrics) ObserveSourceFailure(source string, _ error) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source).Inc()
}
