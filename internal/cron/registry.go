package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Job is one unit of scheduled gallery maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a cron cycle runs, in registration order. Job names
// label metrics and log lines, so they must be unique.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry validates and registers jobs.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(jobs))}
	for _, job := range jobs {
		if job == nil {
			return nil, errors.New("cron job is nil")
		}
		name := strings.TrimSpace(job.Name())
		if name == "" {
			return nil, errors.New("cron job name required")
		}
		if _, dup := r.names[name]; dup {
			return nil, fmt.Errorf("cron job %q registered twice", name)
		}
		r.names[name] = struct{}{}
		r.jobs = append(r.jobs, job)
	}
	return r, nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	if r == nil {
		return nil
	}
	return slices.Clone(r.jobs)
}
