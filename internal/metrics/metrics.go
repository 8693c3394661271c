// Package metrics exposes Prometheus collectors for questledger.
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
	cacheLookupsTotal          *prometheus.CounterVec
	cacheEvictionsTotal        *prometheus.CounterVec
	cacheVacuumsTotal          *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchRetryDelaysSeconds    *prometheus.HistogramVec
	statusChangesTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questledger_cache_lookups_total",
				Help: "Page cache lookups, labeled by result (hit, miss, expired).",
			},
			[]string{"result"},
		)

		cacheEvictionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questledger_cache_evictions_total",
				Help: "Page cache entries removed, labeled by reason.",
			},
			[]string{"reason"},
		)

		cacheVacuumsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questledger_cache_vacuums_total",
				Help: "Space reclamation passes on the page cache, labeled by kind.",
			},
			[]string{"kind"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questledger_fetch_attempts_total",
				Help: "Network fetch attempts, labeled by site and status code.",
			},
			[]string{"site", "code"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "questledger_fetch_duration_seconds",
				Help:    "Histogram of network fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"site"},
		)

		fetchRetryDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "questledger_fetch_retry_delay_seconds",
				Help:    "Histogram of backoff waits before fetch retries.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		statusChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "questledger_status_changes_total",
				Help: "Entry status writes, labeled by target state.",
			},
			[]string{"state"},
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

// ObserveCacheLookup counts a cache read by result.
func ObserveCacheLookup(result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveCacheEviction counts n entries removed for reason.
func ObserveCacheEviction(reason string, n int64) {
	if n <= 0 {
		return
	}
	Init()
	cacheEvictionsTotal.WithLabelValues(reason).Add(float64(n))
}

// ObserveCacheVacuum counts a full or incremental vacuum.
func ObserveCacheVacuum(kind string) {
	Init()
	cacheVacuumsTotal.WithLabelValues(kind).Inc()
}

// ObserveFetch records one network attempt. A zero code means the request
// never produced a response.
func ObserveFetch(rawURL string, code int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	fetchAttemptsTotal.WithLabelValues(site, label).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveRetryDelay records the backoff wait before a retry.
func ObserveRetryDelay(rawURL string, delay time.Duration) {
	Init()
	fetchRetryDelaysSeconds.WithLabelValues(SanitizeSite(rawURL)).Observe(delay.Seconds())
}

// ObserveStatusChange counts an entry status write.
func ObserveStatusChange(state string) {
	Init()
	statusChangesTotal.WithLabelValues(state).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
