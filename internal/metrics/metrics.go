// Package metrics exposes Prometheus instrumentation for the sync driver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace prefixes every listsync metric.
	Namespace = "listsync"
	// Subsystem names the component registering the metrics.
	Subsystem = "driver"
)

const (
	// ModeLabel distinguishes initial paging from refresh sweeps.
	ModeLabel = "mode"
	// ResultLabel is "success" or "failure" for fetches.
	ResultLabel = "result"
	// KindLabel is the action kind of a transition.
	KindLabel = "kind"
	// ReasonLabel names the guard that tripped.
	ReasonLabel = "reason"
)

const (
	ModeInitial   = "initial"
	ModeRefresh   = "refresh"
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics implements the driver's observer interface on Prometheus
// collectors. A nil *Metrics records nothing.
type Metrics struct {
	fetches      *prometheus.CounterVec
	fetchSeconds *prometheus.HistogramVec
	transitions  *prometheus.CounterVec
	dropped      prometheus.Counter
	guards       *prometheus.CounterVec
	items        prometheus.Gauge
	filtered     prometheus.Gauge
}

// New creates the collectors and registers them on reg.
// Registration panics on duplicates, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "page_fetches_total",
			Help:      "Number of page fetches by mode and result.",
		}, []string{ModeLabel, ResultLabel}),
		fetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "page_fetch_duration_seconds",
			Help:      "Duration of page fetches including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{ModeLabel}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "transitions_total",
			Help:      "Number of committed transitions by action kind.",
		}, []string{KindLabel}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "pages_dropped_total",
			Help:      "Number of pages discarded because their activity was cancelled.",
		}),
		guards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "guard_trips_total",
			Help:      "Number of activities aborted by a paging guard.",
		}, []string{ReasonLabel}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "items",
			Help:      "Number of tracked objects.",
		}),
		filtered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "filtered_items",
			Help:      "Number of tracked objects passing the filter.",
		}),
	}
	reg.MustRegister(m.fetches, m.fetchSeconds, m.transitions, m.dropped, m.guards, m.items, m.filtered)
	return m
}

func mode(refresh bool) string {
	if refresh {
		return ModeRefresh
	}
	return ModeInitial
}

// FetchCompleted records one resolved fetch.
func (m *Metrics) FetchCompleted(refresh bool, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.fetches.WithLabelValues(mode(refresh), result).Inc()
	m.fetchSeconds.WithLabelValues(mode(refresh)).Observe(elapsed.Seconds())
}

// TransitionApplied records one committed transition.
func (m *Metrics) TransitionApplied(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

// ItemsChanged records the current list sizes.
func (m *Metrics) ItemsChanged(items, filtered int) {
	if m == nil {
		return
	}
	m.items.Set(float64(items))
	m.filtered.Set(float64(filtered))
}

// PageDropped records a page discarded after cancellation.
func (m *Metrics) PageDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// GuardTripped records an activity aborted by a guard.
func (m *Metrics) GuardTripped(reason string) {
	if m == nil {
		return
	}
	m.guards.WithLabelValues(reason).Inc()
}
