// Package metrics exposes Prometheus metrics for verdicts, the bridge and
// the host HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/geowatch/internal/model"
)

const namespace = "geowatch"

// Collector owns a registry and every geowatch metric.
type Collector struct {
	registry *prometheus.Registry

	verdicts       *prometheus.CounterVec
	issues         *prometheus.CounterVec
	failures       prometheus.Counter
	lastAccuracy   prometheus.Gauge
	bridgeMessages *prometheus.CounterVec
	bridgeDropped  *prometheus.CounterVec
	devOptsEnabled prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a Collector with its own registry. Go runtime and process
// collectors are included.
func New(version string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verdicts_total",
		Help:      "Location verdicts by outcome",
	}, []string{"valid"})

	c.issues = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "issues_total",
		Help:      "Heuristic issues raised, by code",
	}, []string{"code"})

	c.failures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "acquisition_failures_total",
		Help:      "Location acquisitions that returned an error",
	})

	c.lastAccuracy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_accuracy_meters",
		Help:      "Reported accuracy of the most recent sample",
	})

	c.bridgeMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_messages_total",
		Help:      "Bridge messages handled, by type",
	}, []string{"type"})

	c.bridgeDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_dropped_total",
		Help:      "Bridge messages dropped, by reason",
	}, []string{"reason"})

	c.devOptsEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "developer_options_enabled",
		Help:      "1 when the last developer-options probe reported enabled",
	})

	c.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	c.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)

	c.registry.MustRegister(
		c.verdicts,
		c.issues,
		c.failures,
		c.lastAccuracy,
		c.bridgeMessages,
		c.bridgeDropped,
		c.devOptsEnabled,
		c.httpRequestsTotal,
		c.httpRequestDuration,
		info,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveVerdict counts a verdict and its issues.
func (c *Collector) ObserveVerdict(v model.Verdict) {
	c.verdicts.WithLabelValues(strconv.FormatBool(v.Valid)).Inc()
	for _, is := range v.Issues {
		c.issues.WithLabelValues(string(is.Code)).Inc()
	}
	if a := v.Sample.Accuracy; a != nil {
		c.lastAccuracy.Set(*a)
	}
}

// ObserveFailure counts a failed acquisition.
func (c *Collector) ObserveFailure() {
	c.failures.Inc()
}

// ObserveBridgeMessage counts a handled bridge message.
func (c *Collector) ObserveBridgeMessage(msgType string) {
	c.bridgeMessages.WithLabelValues(msgType).Inc()
}

// ObserveBridgeDrop counts a dropped bridge message.
func (c *Collector) ObserveBridgeDrop(reason string) {
	c.bridgeDropped.WithLabelValues(reason).Inc()
}

// SetDeveloperOptions records the last probe result.
func (c *Collector) SetDeveloperOptions(enabled bool) {
	if enabled {
		c.devOptsEnabled.Set(1)
		return
	}
	c.devOptsEnabled.Set(0)
}

// Middleware returns gin middleware that collects HTTP metrics.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(ctx.Writer.Status())
		c.httpRequestsTotal.WithLabelValues(ctx.Request.Method, endpoint, status).Inc()
		c.httpRequestDuration.WithLabelValues(ctx.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape handler for gin.
func (c *Collector) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
	return func(ctx *gin.Context) {
		handler.ServeHTTP(ctx.Writer, ctx.Request)
	}
}
