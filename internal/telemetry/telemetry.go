// Package telemetry exposes Prometheus metrics for the fetch engine.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asyncfetch_jobs_total",
			Help: "Total number of submitted jobs, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	fetchActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "asyncfetch_active_jobs",
			Help: "Number of jobs currently holding an admission slot.",
		},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asyncfetch_duration_seconds",
			Help:    "Histogram of fetch durations, labeled by method.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
		[]string{"method"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asyncfetch_bytes_total",
			Help: "Total body bytes delivered, labeled by delivery mode.",
		},
		[]string{"mode"},
	)

	fetchTruncationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asyncfetch_truncations_total",
			Help: "Total truncation events, labeled by kind (body or headers).",
		},
		[]string{"kind"},
	)

	slotWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asyncfetch_slot_wait_seconds",
			Help:    "Histogram of admission slot acquisition waits.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// Submission outcomes recorded by ObserveJob.
const (
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
	OutcomeRejected    = "rejected"
	OutcomeNoSlot      = "no_slot"
	OutcomeSpawnFailed = "spawn_failed"
)

// ObserveJob records a job outcome.
func ObserveJob(outcome string) {
	fetchJobsTotal.WithLabelValues(outcome).Inc()
}

// IncActiveJobs increments the active job count.
func IncActiveJobs() {
	fetchActiveJobs.Inc()
}

// DecActiveJobs decrements the active job count.
func DecActiveJobs() {
	fetchActiveJobs.Dec()
}

// ObserveFetch records the duration of a completed exchange.
func ObserveFetch(method string, duration time.Duration) {
	fetchDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// AddBytes records body bytes delivered for a mode.
func AddBytes(mode string, n int64) {
	if n > 0 {
		fetchBytesTotal.WithLabelValues(mode).Add(float64(n))
	}
}

// ObserveTruncation records a body or headers truncation.
func ObserveTruncation(kind string) {
	fetchTruncationsTotal.WithLabelValues(kind).Inc()
}

// ObserveSlotWait records how long a submission waited for a slot.
func ObserveSlotWait(duration time.Duration) {
	slotWaitSeconds.Observe(duration.Seconds())
}
