package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the TaskForge server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Rate limiting.
	RateLimitRejectionsTotal prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal   *prometheus.CounterVec
	AuthSuccessesTotal  *prometheus.CounterVec
	SessionsPurgedTotal prometheus.Counter

	// Activity and realtime.
	ActivityPublishedTotal *prometheus.CounterVec
	RealtimeConnections    prometheus.Gauge
	RealtimeFramesTotal    *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskforge_ratelimit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"kind"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"kind"}),

		SessionsPurgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskforge_sessions_purged_total",
			Help: "Total number of expired sessions deleted by the purge job.",
		}),

		ActivityPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_activity_published_total",
			Help: "Total number of activity events handed to the event bus.",
		}, []string{"status"}),

		RealtimeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskforge_realtime_connections",
			Help: "Number of open realtime connections.",
		}),

		RealtimeFramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_realtime_frames_total",
			Help: "Total number of realtime frames by direction and type.",
		}, []string{"direction", "type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskforge_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.SessionsPurgedTotal,
		m.ActivityPublishedTotal,
		m.RealtimeConnections,
		m.RealtimeFramesTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one finished HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(d.Seconds())
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncAuthFailure increments the auth failure counter for the given kind.
func (m *Metrics) IncAuthFailure(kind string) {
	m.AuthFailuresTotal.WithLabelValues(kind).Inc()
}

// IncAuthSuccess increments the auth success counter for the given kind.
func (m *Metrics) IncAuthSuccess(kind string) {
	m.AuthSuccessesTotal.WithLabelValues(kind).Inc()
}

// AddSessionsPurged adds n to the purged sessions counter.
func (m *Metrics) AddSessionsPurged(n int64) {
	m.SessionsPurgedTotal.Add(float64(n))
}

// IncActivityPublished counts a publish attempt by outcome.
func (m *Metrics) IncActivityPublished(status string) {
	m.ActivityPublishedTotal.WithLabelValues(status).Inc()
}

// RealtimeConnected tracks a realtime connection opening.
func (m *Metrics) RealtimeConnected() {
	m.RealtimeConnections.Inc()
}

// RealtimeDisconnected tracks a realtime connection closing.
func (m *Metrics) RealtimeDisconnected() {
	m.RealtimeConnections.Dec()
}

// IncRealtimeFrame counts a realtime frame. direction is "in" or "out".
func (m *Metrics) IncRealtimeFrame(direction, frameType string) {
	m.RealtimeFramesTotal.WithLabelValues(direction, frameType).Inc()
}
