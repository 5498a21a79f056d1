// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	keywordsTotal              *prometheus.CounterVec
	candidatesTotal            prometheus.Counter
	detailsTotal               *prometheus.CounterVec
	mediaTotal                 *prometheus.CounterVec
	mediaBytesTotal            prometheus.Counter
	blockedTotal               prometheus.Counter
	retriesTotal               *prometheus.CounterVec
	pacingDelaySeconds         prometheus.Histogram
	exportsTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		keywordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodrefs_keywords_total",
				Help: "Keywords processed, labeled by status.",
			},
			[]string{"status"},
		)

		candidatesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "prodrefs_candidates_total",
				Help: "Candidates discovered across all keywords.",
			},
		)

		detailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodrefs_details_total",
				Help: "Detail pages resolved, labeled by status.",
			},
			[]string{"status"},
		)

		mediaTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodrefs_media_total",
				Help: "Media downloads, labeled by status (saved, reused, failed).",
			},
			[]string{"status"},
		)

		mediaBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "prodrefs_media_bytes_total",
				Help: "Bytes of media stored.",
			},
		)

		blockedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "prodrefs_blocked_total",
				Help: "Runs stopped by a blocking page.",
			},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodrefs_retries_total",
				Help: "Retries scheduled, labeled by operation.",
			},
			[]string{"op"},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prodrefs_pacing_delay_seconds",
				Help:    "Histogram of pacing delays inserted between steps.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
		)

		exportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodrefs_exports_total",
				Help: "Row sink writes, labeled by sink and status.",
			},
			[]string{"sink", "status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodrefs_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prodrefs_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveKeyword counts a finished keyword.
func ObserveKeyword(status string) {
	Init()
	keywordsTotal.WithLabelValues(status).Inc()
}

// AddCandidates counts discovered candidates.
func AddCandidates(n int) {
	Init()
	if n > 0 {
		candidatesTotal.Add(float64(n))
	}
}

// ObserveDetail counts a resolved or failed detail page.
func ObserveDetail(status string) {
	Init()
	detailsTotal.WithLabelValues(status).Inc()
}

// ObserveMedia counts one media outcome and its stored size.
func ObserveMedia(status string, size int64) {
	Init()
	mediaTotal.WithLabelValues(status).Inc()
	if size > 0 {
		mediaBytesTotal.Add(float64(size))
	}
}

// ObserveBlocked counts a blocking page.
func ObserveBlocked() {
	Init()
	blockedTotal.Inc()
}

// ObserveRetry counts a scheduled retry of op.
func ObserveRetry(op string) {
	Init()
	retriesTotal.WithLabelValues(op).Inc()
}

// ObservePacingDelay records a pacing pause.
func ObservePacingDelay(d time.Duration) {
	Init()
	pacingDelaySeconds.Observe(d.Seconds())
}

// ObserveExport counts a row sink write.
func ObserveExport(sink, status string) {
	Init()
	exportsTotal.WithLabelValues(sink, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
