package cron

import "context"

// Job is one maintenance task the cron worker runs per tick, such as the
// outbox or dead-letter retention sweeps.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the worker's jobs in registration order. Jobs run
// sequentially; a failing job is logged and counted but never blocks the
// ones after it.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the given jobs, dropping nils.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register appends a job. Nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs in run order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
