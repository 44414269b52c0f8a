package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the client-side collectors. All methods on the
// collectors are safe to call on a nil receiver, which disables them.
type Registry struct {
	reg    *prometheus.Registry
	API    *APIMetrics
	Poller *PollerMetrics
}

// NewRegistry creates a registry with the dsactl collectors registered
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg:    reg,
		API:    newAPIMetrics(reg),
		Poller: newPollerMetrics(reg),
	}
	reg.MustRegister(collectors.NewGoCollector())
	return r
}

// Handler serves the registry in Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry (for tests)
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// APIMetrics tracks outbound API calls
type APIMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	m := &APIMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsactl_api_requests_total",
			Help: "API requests by method and status code (0 = transport failure)",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dsactl_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

// Observe records one finished request. Paths are not used as labels to
// keep cardinality bounded by method and status.
func (m *APIMetrics) Observe(method, path string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(method).Observe(d.Seconds())
}

// PollerMetrics tracks job status pollers
type PollerMetrics struct {
	ticks          *prometheus.CounterVec
	refetches      *prometheus.CounterVec
	refetchFailure *prometheus.CounterVec
	pending        *prometheus.GaugeVec
}

func newPollerMetrics(reg prometheus.Registerer) *PollerMetrics {
	m := &PollerMetrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsactl_poller_ticks_total",
			Help: "Poll ticks executed",
		}, []string{"poller"}),
		refetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsactl_poller_refetches_total",
			Help: "Entity refetches issued",
		}, []string{"poller"}),
		refetchFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsactl_poller_refetch_failures_total",
			Help: "Entity refetches that failed and will be retried next tick",
		}, []string{"poller"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dsactl_poller_pending_entities",
			Help: "Tracked entities not yet in a terminal status",
		}, []string{"poller"}),
	}
	reg.MustRegister(m.ticks, m.refetches, m.refetchFailure, m.pending)
	return m
}

// RecordTick counts a tick and the refetches it issued
func (m *PollerMetrics) RecordTick(name string, refetches int) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(name).Inc()
	m.refetches.WithLabelValues(name).Add(float64(refetches))
}

// RecordFailure counts a failed refetch
func (m *PollerMetrics) RecordFailure(name string) {
	if m == nil {
		return
	}
	m.refetchFailure.WithLabelValues(name).Inc()
}

// SetPending publishes the current pending set size
func (m *PollerMetrics) SetPending(name string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(name).Set(float64(n))
}
