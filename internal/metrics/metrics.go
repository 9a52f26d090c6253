// Package metrics exposes Prometheus collectors for harvest runs.
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
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	descriptorsTotal           *prometheus.CounterVec
	indexInsertsTotal          *prometheus.CounterVec
	resourcesTotal             *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tdsharvest_fetches_total",
				Help: "Total number of fetches, labeled by site and status class.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tdsharvest_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		descriptorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tdsharvest_descriptors_total",
				Help: "Descriptor documents processed, labeled by extraction result.",
			},
			[]string{"result"},
		)

		indexInsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tdsharvest_index_inserts_total",
				Help: "Index store inserts, labeled by result.",
			},
			[]string{"result"},
		)

		resourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tdsharvest_resources_total",
				Help: "Reaped resources, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tdsharvest_rate_limit_delay_seconds",
				Help:    "Histogram of inter-request throttle waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tdsharvest_http_requests_total",
				Help: "Status server requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tdsharvest_http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
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

// StatusClass groups HTTP status codes into 2xx, 3xx, 4xx, 5xx or other.
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one fetch and the bytes it returned.
func ObserveFetch(rawURL, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveDescriptor counts a descriptor extraction ("extracted" or "stub").
func ObserveDescriptor(result string) {
	Init()
	descriptorsTotal.WithLabelValues(result).Inc()
}

// ObserveInsert counts an index insert ("ok" or "failed").
func ObserveInsert(result string) {
	Init()
	indexInsertsTotal.WithLabelValues(result).Inc()
}

// ObserveResource counts a reaped resource by outcome.
func ObserveResource(outcome string) {
	Init()
	resourcesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a throttle wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the status server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
