package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by all handlers.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Claim lifecycle metrics, driven by the batch engine and the scheduler.
var (
	claimsPromotedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "claims_promoted_total",
		Help: "Claims moved from open to for_review by the promotion job.",
	})

	claimsEvaluatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_evaluated_total",
			Help: "Claims decided by the evaluation job, by outcome.",
		},
		[]string{"outcome"},
	)

	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduled job executions, by job name and result.",
		},
		[]string{"job", "result"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Scheduled job run time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		claimsPromotedTotal, claimsEvaluatedTotal, jobRunsTotal, jobDuration,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPromotion counts claims promoted in one batch.
func RecordPromotion(n int) {
	if n > 0 {
		claimsPromotedTotal.Add(float64(n))
	}
}

// RecordEvaluation counts claims decided in one batch.
func RecordEvaluation(approved, rejected int) {
	if approved > 0 {
		claimsEvaluatedTotal.WithLabelValues("approved").Add(float64(approved))
	}
	if rejected > 0 {
		claimsEvaluatedTotal.WithLabelValues("rejected").Add(float64(rejected))
	}
}

// RecordJobRun records one scheduler job execution.
func RecordJobRun(job, result string, elapsed time.Duration) {
	jobRunsTotal.WithLabelValues(job, result).Inc()
	jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric cardinality stays bounded.
func CanonicalPath(raw string) string {
	path := raw
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	for _, prefix := range []string{"/v1/claims/", "/v1/transactions/", "/v1/accounts/", "/v1/reports/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		parts := strings.SplitN(rest, "/", 2)
		if parts[0] == "" {
			return path
		}
		if len(parts) == 1 {
			if parts[0] == "stream" {
				return path
			}
			return prefix + ":id"
		}
		switch parts[1] {
		case "visibility", "credit", "policy":
			return prefix + ":id/" + parts[1]
		}
		return path
	}
	return path
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
