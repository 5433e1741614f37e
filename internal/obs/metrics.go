package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	otpVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification attempts by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	otpResends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_resends_total",
			Help: "OTP resend requests by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	otpDispatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_dispatch_failures_total",
			Help: "OTP codes committed but not delivered.",
		},
		[]string{"purpose"},
	)

	sweepRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_rows_total",
			Help: "Signup rows affected by sweep jobs.",
		},
		[]string{"job"},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Sweep job runs by result.",
		},
		[]string{"job", "result"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	registerOnce sync.Once
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			otpVerifications, otpResends, otpDispatchFailures,
			sweepRows, sweepRuns,
			httpRequestsTotal, httpRequestDuration,
		)
	})
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }

func OTPVerification(purpose, outcome string) {
	otpVerifications.WithLabelValues(purpose, outcome).Inc()
}

func OTPResend(purpose, outcome string) { otpResends.WithLabelValues(purpose, outcome).Inc() }

func OTPDispatchFailure(purpose string) { otpDispatchFailures.WithLabelValues(purpose).Inc() }

// SweepRun records one job execution; failed runs add no rows.
func SweepRun(job string, rows int, err error) {
	if err != nil {
		sweepRuns.WithLabelValues(job, "error").Inc()
		return
	}
	sweepRuns.WithLabelValues(job, "ok").Inc()
	sweepRows.WithLabelValues(job).Add(float64(rows))
}

// Instrument records request counts and latency labelled by chi route pattern.
// Requests no route matched share the "unmatched" label.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
