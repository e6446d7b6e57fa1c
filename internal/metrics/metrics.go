package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	polls            *prometheus.CounterVec
	pollDuration     prometheus.Histogram
	enrichFailures   *prometheus.CounterVec
	loopSaves        *prometheus.CounterVec
	powerTransitions *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosksync_polls_total",
			Help: "Device loop polls by outcome",
		}, []string{"status"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiosksync_poll_duration_seconds",
			Help:    "Time spent resolving a device poll",
			Buckets: prometheus.DefBuckets,
		}),
		enrichFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosksync_enrich_failures_total",
			Help: "Module settings enrichments that fell back to raw settings",
		}, []string{"module_key"}),
		loopSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosksync_loop_saves_total",
			Help: "Loop configuration saves by result",
		}, []string{"result"}),
		powerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosksync_power_transitions_total",
			Help: "Logged display power transitions by new status",
		}, []string{"status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.polls,
		m.pollDuration,
		m.enrichFailures,
		m.loopSaves,
		m.powerTransitions,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePoll(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(status).Inc()
	m.pollDuration.Observe(took.Seconds())
}

func (m *Metrics) EnrichFailed(moduleKey string) {
	if m == nil {
		return
	}
	m.enrichFailures.WithLabelValues(moduleKey).Inc()
}

func (m *Metrics) LoopSaved(result string) {
	if m == nil {
		return
	}
	m.loopSaves.WithLabelValues(result).Inc()
}

func (m *Metrics) PowerTransition(status string) {
	if m == nil {
		return
	}
	m.powerTransitions.WithLabelValues(status).Inc()
}

// Middleware records request latency by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
