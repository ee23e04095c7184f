// Package metrics exposes Prometheus collectors for the change-detection service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	targetsProcessedTotal      *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	escalationsTotal           *prometheus.CounterVec
	alertsTotal                *prometheus.CounterVec
	guardrailFlagsTotal        *prometheus.CounterVec
	retentionDeletedTotal      *prometheus.CounterVec
	leaseContentionTotal       prometheus.Counter
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	tickDurationSeconds        *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		targetsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_targets_processed_total",
				Help: "Targets run through the pipeline, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_fetches_total",
				Help: "Backend fetches, labeled by strategy and result.",
			},
			[]string{"strategy", "result"},
		)

		escalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_escalations_total",
				Help: "Cheap fetches escalated to the accurate strategy, labeled by reason.",
			},
			[]string{"reason"},
		)

		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_alerts_total",
				Help: "Alerts created, labeled by severity.",
			},
			[]string{"severity"},
		)

		guardrailFlagsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_guardrail_flags_total",
				Help: "Guardrail flags raised, labeled by flag and action.",
			},
			[]string{"flag", "action"},
		)

		retentionDeletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_retention_deleted_total",
				Help: "Records removed by the retention sweeper, labeled by kind.",
			},
			[]string{"kind"},
		)

		leaseContentionTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pagewatch_lease_contention_total",
				Help: "Targets skipped because another worker held the lease.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewatch_active_workers",
				Help: "Number of workers currently processing a target.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagewatch_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		)

		tickDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagewatch_tick_duration_seconds",
				Help:    "Histogram of batch run durations, labeled by job.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"job"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTarget counts one pipeline outcome.
func ObserveTarget(outcome string) {
	Init()
	targetsProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch counts one backend fetch.
func ObserveFetch(strategy, result string) {
	Init()
	fetchesTotal.WithLabelValues(strategy, result).Inc()
}

// ObserveEscalation counts a cheap-to-accurate escalation.
func ObserveEscalation(reason string) {
	Init()
	escalationsTotal.WithLabelValues(reason).Inc()
}

// ObserveAlert counts a created alert.
func ObserveAlert(severity string) {
	Init()
	alertsTotal.WithLabelValues(severity).Inc()
}

// ObserveGuardrail counts a raised guardrail flag.
func ObserveGuardrail(flag, action string) {
	Init()
	guardrailFlagsTotal.WithLabelValues(flag, action).Inc()
}

// ObserveRetention adds deleted records of kind.
func ObserveRetention(kind string, deleted int64) {
	Init()
	if deleted > 0 {
		retentionDeletedTotal.WithLabelValues(kind).Add(float64(deleted))
	}
}

// ObserveLeaseContention counts a target skipped for a held lease.
func ObserveLeaseContention() {
	Init()
	leaseContentionTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(backend string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveRun records the duration of a batch job.
func ObserveRun(job string, duration time.Duration) {
	Init()
	tickDurationSeconds.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
