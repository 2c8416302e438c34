package scheduler

import (
	"context"
	"time"
)

// Job is a unit of background work run on a fixed cadence.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// RecurringJob is the externally owned schedule for one job.
type RecurringJob struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
}

type entry struct {
	job      Job
	schedule RecurringJob
}

// Registry tracks jobs together with their schedules in registration order.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds job with schedule. A zero interval keeps the job out of Run;
// RunOnce still runs it.
func (r *Registry) Register(job Job, schedule RecurringJob) {
	if job == nil {
		return
	}
	if schedule.Name == "" {
		schedule.Name = job.Name()
	}
	r.entries = append(r.entries, entry{job: job, schedule: schedule})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.entries))
	for i, e := range r.entries {
		jobs[i] = e.job
	}
	return jobs
}

func (r *Registry) schedules() []entry {
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	return out
}
