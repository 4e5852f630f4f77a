// Package metrics exposes Prometheus collectors for the archive bot.
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
	botCommandsTotal            *prometheus.CounterVec
	botAdmissionsTotal          *prometheus.CounterVec
	botPageFetchDurationSeconds *prometheus.HistogramVec
	botExternalCallsTotal       *prometheus.CounterVec
	botExternalCallSeconds      *prometheus.HistogramVec
	botRunningSessions          prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		botCommandsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_commands_total",
				Help: "Total number of chat commands handled, labeled by command and outcome.",
			},
			[]string{"command", "outcome"},
		)

		botAdmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_admissions_total",
				Help: "Total number of archive admission decisions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		botPageFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archivebot_page_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by backend and status.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend", "status"},
		)

		botExternalCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archivebot_external_calls_total",
				Help: "Total number of external process invocations, labeled by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		)

		botExternalCallSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archivebot_external_call_duration_seconds",
				Help:    "Histogram of external process run times, labeled by tool.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
			},
			[]string{"tool"},
		)

		botRunningSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archivebot_running_sessions",
				Help: "Number of archive sessions seen at the last registry read.",
			},
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

// ObserveCommand counts one handled chat command.
func ObserveCommand(command, outcome string) {
	Init()
	botCommandsTotal.WithLabelValues(command, outcome).Inc()
}

// ObserveAdmission counts one admission decision.
func ObserveAdmission(outcome string) {
	Init()
	botAdmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObservePageFetch records the latency of one page fetch.
func ObservePageFetch(backend, status string, duration time.Duration) {
	Init()
	botPageFetchDurationSeconds.WithLabelValues(backend, status).Observe(duration.Seconds())
}

// ObserveExternalCall records one external process invocation.
func ObserveExternalCall(tool, outcome string, duration time.Duration) {
	Init()
	botExternalCallsTotal.WithLabelValues(tool, outcome).Inc()
	botExternalCallSeconds.WithLabelValues(tool).Observe(duration.Seconds())
}

// SetRunningSessions records the session count of the latest registry read.
func SetRunningSessions(n int) {
	Init()
	botRunningSessions.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
