// Package metrics exposes Prometheus collectors for ledger reads, feed builds and submissions.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	recordsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerfeed",
			Name:      "records_fetched_total",
			Help:      "Record reads by schema and outcome (ok, not_found, decode_error, error).",
		},
		[]string{"schema", "result"},
	)

	feedSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerfeed",
			Subsystem: "feed",
			Name:      "skipped_total",
			Help:      "Items left out of an aggregated feed, by reason.",
		},
		[]string{"reason"},
	)

	feedBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerfeed",
			Subsystem: "feed",
			Name:      "build_duration_seconds",
			Help:      "Duration of feed and post-list builds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"kind"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerfeed",
			Name:      "submissions_total",
			Help:      "Ledger submissions by instruction and outcome.",
		},
		[]string{"instruction", "status"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledgerfeed",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerfeed",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerfeed",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		recordsFetched,
		feedSkipped,
		feedBuildDuration,
		submissions,
		httpInFlight,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordFetch counts one record read.
func RecordFetch(schema, result string) {
	recordsFetched.WithLabelValues(schema, result).Inc()
}

// RecordSkip counts one item dropped from a feed.
func RecordSkip(reason string) {
	feedSkipped.WithLabelValues(reason).Inc()
}

// ObserveBuild records how long a feed or post-list build took.
func ObserveBuild(kind string, duration time.Duration) {
	feedBuildDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSubmission counts one ledger submission.
func RecordSubmission(instruction string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	submissions.WithLabelValues(instruction, status).Inc()
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
