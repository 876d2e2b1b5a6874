package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "autocaller"

// Metrics stores Prometheus collectors used by the ops server and the scheduler.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	passesTotal           *prometheus.CounterVec
	passDuration          prometheus.Histogram
	candidates            prometheus.Gauge
	callsDispatchedTotal  *prometheus.CounterVec
	callsFailedTotal      *prometheus.CounterVec
	placementDuration     *prometheus.HistogramVec
	outcomeCommitFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dispatch_passes_total",
				Help:      "Total number of scheduler passes by result.",
			},
			[]string{"result"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "dispatch_pass_duration_seconds",
				Help:      "Duration of scheduler passes that read the store.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		candidates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "dispatch_candidates",
				Help:      "Number of pending calls found by the most recent pass.",
			},
		),
		callsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calls_dispatched_total",
				Help:      "Total number of dispatch attempts by outcome.",
			},
			[]string{"outcome"},
		),
		callsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calls_failed_total",
				Help:      "Total number of failed dispatch attempts by reason.",
			},
			[]string{"reason"},
		),
		placementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "placement_duration_seconds",
				Help:      "Time spent handing calls to the telephony engine, by result.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"result"},
		),
		outcomeCommitFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "outcome_commit_failures_total",
				Help:      "Outcomes that could not be written back; the call stays pending.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.passesTotal,
		m.passDuration,
		m.candidates,
		m.callsDispatchedTotal,
		m.callsFailedTotal,
		m.placementDuration,
		m.outcomeCommitFailures,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncPass(result string) {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) ObservePassDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) SetCandidates(n int) {
	if m == nil {
		return
	}
	m.candidates.Set(float64(n))
}

func (m *Metrics) IncCallDispatched(outcome string) {
	if m == nil {
		return
	}
	m.callsDispatchedTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncCallFailed(reason string) {
	if m == nil {
		return
	}
	m.callsFailedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObservePlacementDuration(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.placementDuration.WithLabelValues(normalizeLabel(result)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncOutcomeCommitFailure() {
	if m == nil {
		return
	}
	m.outcomeCommitFailures.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func nonNegativeSeconds(duration time.Duration) float64 {
	if duration < 0 {
		return 0
	}
	return duration.Seconds()
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
