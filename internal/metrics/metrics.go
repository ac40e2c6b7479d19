// Package metrics exposes Prometheus collectors for the ingestion pipeline.
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
	fetchTotal                 *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	candidatesTotal            *prometheus.CounterVec
	syncPostingsTotal          *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	lastRunTimestampSeconds    prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamejobs_fetch_total",
				Help: "Total number of page fetches, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamejobs_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by host.",
			},
			[]string{"host"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamejobs_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies including retries, labeled by host.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamejobs_rate_limit_delay_seconds",
				Help:    "Histogram of pacing waits, labeled by domain.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"domain"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamejobs_candidates_total",
				Help: "Total number of parsed candidates, labeled by source and filter decision.",
			},
			[]string{"source", "decision"},
		)

		syncPostingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamejobs_sync_postings_total",
				Help: "Total number of postings handled by the synchronizer, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamejobs_runs_total",
				Help: "Total number of ingestion runs, labeled by status.",
			},
			[]string{"status"},
		)

		lastRunTimestampSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gamejobs_last_run_timestamp_seconds",
				Help: "Unix time the last ingestion run finished.",
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

// ObserveFetch records one finished fetch.
func ObserveFetch(rawURL, outcome string, retries int, duration time.Duration) {
	Init()
	host := SanitizeSite(rawURL)
	fetchTotal.WithLabelValues(host, outcome).Inc()
	if retries > 0 {
		fetchRetriesTotal.WithLabelValues(host).Add(float64(retries))
	}
	fetchDurationSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveCandidates adds n candidates with the given filter decision.
func ObserveCandidates(source, decision string, n int) {
	if n <= 0 {
		return
	}
	Init()
	candidatesTotal.WithLabelValues(source, decision).Add(float64(n))
}

// ObserveSync adds n postings with the given sync outcome.
func ObserveSync(outcome string, n int) {
	if n <= 0 {
		return
	}
	Init()
	syncPostingsTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveRun records a finished run.
func ObserveRun(status string, finished time.Time) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
	lastRunTimestampSeconds.Set(float64(finished.Unix()))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
