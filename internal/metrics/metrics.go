// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

var (
	harvestRowsTotal               *prometheus.CounterVec
	harvestFetchesTotal            *prometheus.CounterVec
	harvestEmailsTotal             prometheus.Counter
	harvestCheckpointFailuresTotal *prometheus.CounterVec
	harvestRunDurationSeconds      *prometheus.HistogramVec
	syncOperationsTotal            *prometheus.CounterVec
	fetchRateLimitDelaySeconds     *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_rows_total",
				Help: "Total number of dataset rows classified, labeled by status.",
			},
			[]string{"status"},
		)

		harvestFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetches_total",
				Help: "Total number of page fetches, labeled by result.",
			},
			[]string{"result"},
		)

		harvestEmailsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_emails_total",
				Help: "Total number of prefix-matching emails recorded.",
			},
		)

		harvestCheckpointFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_checkpoint_failures_total",
				Help: "Total number of failed table saves, labeled by table.",
			},
			[]string{"table"},
		)

		harvestRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_run_duration_seconds",
				Help:    "Histogram of harvest run durations, labeled by stop reason.",
				Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
			},
			[]string{"reason"},
		)

		syncOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_operations_total",
				Help: "Total number of drive sync steps, labeled by step and result.",
			},
			[]string{"step", "result"},
		)

		fetchRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delay_seconds",
				Help:    "Histogram of per-host fetch pacing waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Recorder implements harvest.Recorder on the package collectors.
type Recorder struct{}

// NewRecorder initializes the collectors and returns a Recorder.
func NewRecorder() *Recorder {
	Init()
	return &Recorder{}
}

// ObserveRow counts a classified row.
func (*Recorder) ObserveRow(status harvest.Status) {
	harvestRowsTotal.WithLabelValues(string(status)).Inc()
}

// ObserveFetch counts a page fetch.
func (*Recorder) ObserveFetch(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	harvestFetchesTotal.WithLabelValues(result).Inc()
}

// ObserveEmails adds n recorded emails.
func (*Recorder) ObserveEmails(n int) {
	if n > 0 {
		harvestEmailsTotal.Add(float64(n))
	}
}

// ObserveCheckpointFailure counts a failed save of the named table.
func (*Recorder) ObserveCheckpointFailure(tableName string) {
	harvestCheckpointFailuresTotal.WithLabelValues(tableName).Inc()
}

// ObserveRun records the duration of a finished run.
func (*Recorder) ObserveRun(reason harvest.StopReason, d time.Duration) {
	harvestRunDurationSeconds.WithLabelValues(string(reason)).Observe(d.Seconds())
}

// ObserveSync counts a drive sync step.
func (*Recorder) ObserveSync(step string, err error) {
	ObserveSync(step, err)
}

// ObserveSync counts a drive sync step.
func ObserveSync(step string, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	syncOperationsTotal.WithLabelValues(step, result).Inc()
}

// ObserveRateLimitDelay records a fetch pacing wait.
func (*Recorder) ObserveRateLimitDelay(host string, d time.Duration) {
	fetchRateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
