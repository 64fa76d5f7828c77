// Package metrics holds the relay proxy's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request kinds.
const (
	KindRelay   = "relay"
	KindForward = "forward"
)

// Outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeInvalidParams = "invalid_params"
	OutcomeExecution     = "execution_error"
	OutcomeUpstream      = "upstream_error"
)

// Metrics groups the relay collectors on a private registry so tests and
// multiple proxies in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lockWait    prometheus.Histogram
	submissions prometheus.Counter
}

// New registers the relay collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controller",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "JSON-RPC requests handled by the relay proxy.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "controller",
			Subsystem: "relay",
			Name:      "request_duration_seconds",
			Help:      "Time spent handling a relay proxy request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "controller",
			Subsystem: "relay",
			Name:      "relayer_lock_wait_seconds",
			Help:      "Time an outside execution waited for the relayer account.",
			Buckets:   prometheus.DefBuckets,
		}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "controller",
			Subsystem: "relay",
			Name:      "relayer_submissions_total",
			Help:      "Outside executions submitted by the relayer since start.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.lockWait, m.submissions)

	return m
}

// Observe records one handled request.
func (m *Metrics) Observe(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveLockWait records how long a relay waited for the relayer mutex.
func (m *Metrics) ObserveLockWait(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(elapsed.Seconds())
}

// Submitted counts a transaction accepted by the upstream node.
func (m *Metrics) Submitted() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
