package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Response classes recorded by the proxy pipeline.
const (
	// ResponseClassStreamed marks responses streamed through unmodified.
	ResponseClassStreamed = "streamed"

	// ResponseClassRewritten marks responses buffered and rewritten.
	ResponseClassRewritten = "rewritten"
)

// Metrics holds all Prometheus metrics for the booking proxy.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	proxiedTotal     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	upstreamErrors   *prometheus.CounterVec
	sessionsCreated  prometheus.Counter
	sessionCacheHits *prometheus.CounterVec
	rewriteDuration  prometheus.Histogram
	startTime        prometheus.Gauge
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "bookproxy"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method", "route", "status"},
	)

	m.proxiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxied_responses_total",
			Help: "Proxied upstream responses by " +
				"handling class",
		},
		[]string{"class"},
	)

	m.upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream round-trip duration in seconds",
			Buckets: []float64{
				.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30,
			},
		},
		[]string{"host"},
	)

	m.upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream transport failures by kind",
		},
		[]string{"kind"},
	)

	m.sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of proxy sessions created",
		},
	)

	m.sessionCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_cache_lookups_total",
			Help:      "Session cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	m.rewriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rewrite_duration_seconds",
			Help:      "Body rewrite duration in seconds",
			Buckets: []float64{
				.0001, .0005, .001, .005, .01, .05, .1, .5,
			},
		},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help: "Start time of the proxy in unix " +
				"seconds",
		},
	)

	m.registerCollectors()
	m.startTime.SetToCurrentTime()

	return m
}

// registerCollectors registers all metric collectors with the
// Prometheus registry.
func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.proxiedTotal,
		m.upstreamDuration,
		m.upstreamErrors,
		m.sessionsCreated,
		m.sessionCacheHits,
		m.rewriteDuration,
		m.startTime,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
}

// RecordRequest records a completed HTTP request. The route parameter
// should be the matched route name, not the raw request path, to
// prevent cardinality explosion.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, route, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, route, statusStr).Observe(duration.Seconds())
}

// RecordProxiedResponse records a proxied upstream response by class.
func (m *Metrics) RecordProxiedResponse(class string) {
	m.proxiedTotal.WithLabelValues(class).Inc()
}

// RecordUpstream records an upstream round trip.
func (m *Metrics) RecordUpstream(host string, duration time.Duration) {
	m.upstreamDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordUpstreamError records an upstream transport failure.
func (m *Metrics) RecordUpstreamError(kind string) {
	m.upstreamErrors.WithLabelValues(kind).Inc()
}

// RecordSessionCreated records a session creation.
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordSessionCacheLookup records a session cache lookup outcome
// ("hit", "miss", or "expired").
func (m *Metrics) RecordSessionCacheLookup(outcome string) {
	m.sessionCacheHits.WithLabelValues(outcome).Inc()
}

// ObserveRewrite records the duration of a body rewrite.
func (m *Metrics) ObserveRewrite(duration time.Duration) {
	m.rewriteDuration.Observe(duration.Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
