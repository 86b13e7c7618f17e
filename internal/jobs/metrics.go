package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movement_job_runs_total",
			Help: "Total background job runs",
		},
		[]string{"job"},
	)

	jobErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movement_job_errors_total",
			Help: "Total background job errors",
		},
		[]string{"job"},
	)

	jobItemErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movement_job_item_errors_total",
			Help: "Items logged and skipped inside a job run",
		},
		[]string{"job"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movement_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(jobRuns, jobErrors, jobItemErrors, jobDuration)
}
