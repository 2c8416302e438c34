package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "table_reservation"

// CronJobMetrics records metadata for scheduled jobs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	skipped  *prometheus.CounterVec
}

// NewCronJobMetrics registers the scheduler metrics on the provided registerer.
// A nil registerer yields a recorder that drops everything.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of scheduler jobs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_success_total",
		Help:      "Successful scheduler job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_failure_total",
		Help:      "Failed scheduler job executions.",
	}, []string{"job"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_skipped_total",
		Help:      "Scheduler runs skipped because another instance held the lock.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure, skipped)
	return &CronJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		skipped:  skipped,
	}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(job)).Inc()
}

func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

func (c *CronJobMetrics) IncSkipped(job string) {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
