package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts completed submission traversals by outcome.
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adwatch",
		Subsystem: "capture",
		Name:      "submissions_total",
		Help:      "Total number of capture submissions, labeled by final outcome (status or aborted/rejected).",
	}, []string{"result"})

	// SubmissionDurationSeconds is end-to-end time per submission.
	SubmissionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "adwatch",
		Subsystem: "capture",
		Name:      "submission_duration_seconds",
		Help:      "End-to-end time of one capture submission traversal.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"result"})

	// AnalysisDurationSeconds is the remote analysis call time.
	AnalysisDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "adwatch",
		Subsystem: "capture",
		Name:      "analysis_duration_seconds",
		Help:      "Time spent in the remote analysis call.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	// UploadErrorsTotal counts artifact upload or record insert failures.
	UploadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adwatch",
		Subsystem: "capture",
		Name:      "upload_errors_total",
		Help:      "Total number of artifact upload or provisional record insert failures.",
	})

	// SubmissionInFlight is 1 while a submission traversal is running.
	SubmissionInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "adwatch",
		Subsystem: "capture",
		Name:      "submission_in_flight",
		Help:      "Whether a capture submission is currently in flight (0 or 1).",
	})
)

// Register registers capture metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			SubmissionDurationSeconds,
			AnalysisDurationSeconds,
			UploadErrorsTotal,
			SubmissionInFlight,
		)
	})
}
